package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled distinguishes a caller-requested abort from a failed walk.
// Returned wrapped; check with errors.Is.
var ErrCancelled = errors.New("discovery cancelled")

// EntryNotFoundError is fatal: none of the entry paths or patterns
// resolved to an existing file.
type EntryNotFoundError struct {
	Patterns []string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("no entry matched: %s", strings.Join(e.Patterns, ", "))
}

// IsEntryNotFound reports whether err is an entry-resolution failure.
func IsEntryNotFound(err error) bool {
	var enf *EntryNotFoundError
	return errors.As(err, &enf)
}
