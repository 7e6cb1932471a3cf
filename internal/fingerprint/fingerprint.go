// Package fingerprint computes stable content signatures for files.
//
// A Fingerprint combines size, mtime, and an XXH3-128 content hash. Size and
// mtime are cheap pre-filters; the content hash is the authoritative equality
// check whenever it is present.
package fingerprint

import (
	"fmt"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint is an immutable content signature for one file read.
type Fingerprint struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"sizeBytes"`
	MtimeMillis int64  `json:"mtimeMillis"`
	ContentHash string `json:"contentHash"`
}

// Compute stats and reads the file, returning a full fingerprint including
// the content hash. Two consecutive computations on an unmodified file are
// equal.
func Compute(path string) (Fingerprint, error) {
	fp, err := Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	fp.ContentHash = HashBytes(content)
	return fp, nil
}

// Stat returns a partial fingerprint (size and mtime only, no content hash)
// for use as a fast pre-filter. Callers fall back to Compute when the
// pre-filter is ambiguous or cache validation demands certainty.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return Fingerprint{
		Path:        path,
		SizeBytes:   info.Size(),
		MtimeMillis: info.ModTime().UnixMilli(),
	}, nil
}

// Equal reports whether two fingerprints identify the same content version.
// When both carry a content hash, the hash alone decides; otherwise all
// cheap fields must match.
func Equal(a, b Fingerprint) bool {
	if a.ContentHash != "" && b.ContentHash != "" {
		return a.Path == b.Path && a.ContentHash == b.ContentHash
	}
	return a.Path == b.Path && a.SizeBytes == b.SizeBytes && a.MtimeMillis == b.MtimeMillis
}

// MaybeSame is the fast pre-filter: true when size and mtime match, meaning
// the content hash check can be skipped for cache-hit purposes only if the
// caller tolerates mtime granularity. A false result is definitive.
func (f Fingerprint) MaybeSame(other Fingerprint) bool {
	return f.SizeBytes == other.SizeBytes && f.MtimeMillis == other.MtimeMillis
}

// HashBytes returns the hex-encoded XXH3-128 hash of data.
func HashBytes(data []byte) string {
	sum := xxh3.Hash128(data)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// HashString returns the hex-encoded XXH3-128 hash of s.
func HashString(s string) string {
	sum := xxh3.HashString128(s)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}
