// Package discovery walks a source tree from a set of entry paths,
// fingerprints each reachable file, parses it at most once per content
// version, and produces immutable per-file snapshots carrying parsed facts
// and resolved dependency edges. Snapshots are cached in a versioned store
// so repeated walks only re-parse what changed.
package discovery

import (
	"lattice/internal/analyzer"
)

// snapshotFormatVersion bumps whenever Snapshot's persisted shape changes.
// Entries written under an older version become invisible and are pruned
// lazily; there is no migration.
const snapshotFormatVersion = "4"

// Dependency is one import edge as recorded in a snapshot. ResolvedPath is
// empty for external dependencies and for relative specifiers that did not
// resolve to a file on disk.
type Dependency struct {
	Specifier    string `json:"specifier"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
	IsExternal   bool   `json:"isExternal"`
}

// Snapshot is the immutable per-file discovery record. A new snapshot
// supersedes the old one when the file's content signature changes; the
// struct itself is never mutated.
type Snapshot struct {
	FilePath        string                  `json:"filePath"`
	NormalizedKey   string                  `json:"normalizedKey"`
	AnalyzerID      string                  `json:"analyzerId"`
	Signature       string                  `json:"signature"`
	CreatedAtMillis int64                   `json:"createdAtMillis"`
	Analysis        analyzer.ModuleAnalysis `json:"analysis"`
	Dependencies    []Dependency            `json:"dependencies,omitempty"`
}

// Diagnostics returns the file-local problems recorded during analysis.
func (s Snapshot) Diagnostics() []analyzer.Diagnostic {
	return s.Analysis.Diagnostics
}

// LocalDependencies returns the resolved paths of non-external dependencies
// that resolved to a file, in recorded order.
func (s Snapshot) LocalDependencies() []string {
	var paths []string
	for _, dep := range s.Dependencies {
		if !dep.IsExternal && dep.ResolvedPath != "" {
			paths = append(paths, dep.ResolvedPath)
		}
	}
	return paths
}

// validSnapshot is the structural validator handed to the cache store. A
// record missing its identity fields is treated as corrupt.
func validSnapshot(s Snapshot) bool {
	return s.FilePath != "" && s.NormalizedKey != "" && s.Signature != "" && s.AnalyzerID != ""
}

// Result is a successful discovery walk: every visited snapshot plus
// cache effectiveness counters. UnmatchedPatterns lists entry globs that
// expanded to nothing when at least one other entry resolved.
type Result struct {
	Snapshots         []Snapshot
	CacheHits         int
	CacheMisses       int
	UnmatchedPatterns []string
}
