package lattice

import (
	"lattice/internal/analyzer"
	"lattice/internal/cachestore"
	"lattice/internal/depgraph"
	"lattice/internal/discovery"
	"lattice/internal/evaluator"
	"lattice/internal/fingerprint"
	"lattice/internal/watch"
)

// Public type aliases for internal types used in the Session API. These
// are Go type aliases (=), identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Fingerprint = fingerprint.Fingerprint

type Analyzer = analyzer.Analyzer
type ModuleAnalysis = analyzer.ModuleAnalysis
type ModuleDefinition = analyzer.ModuleDefinition
type Diagnostic = analyzer.Diagnostic
type Location = analyzer.Location

type Snapshot = discovery.Snapshot
type Dependency = discovery.Dependency
type DiscoveryResult = discovery.Result

type Graph = depgraph.Graph

type EvaluationResult = evaluator.Result
type EvaluationIssue = evaluator.Issue
type EvaluatedDefinition = evaluator.Definition
type Kind = evaluator.Kind

type Backend = cachestore.Backend

type Changeset = watch.Changeset

// Semantic buckets assigned by the evaluator.
const (
	KindModel     = evaluator.KindModel
	KindSlice     = evaluator.KindSlice
	KindOperation = evaluator.KindOperation
	KindHelper    = evaluator.KindHelper
)

// NewTypeScriptAnalyzer returns the built-in TypeScript/JavaScript
// analyzer.
func NewTypeScriptAnalyzer() Analyzer { return analyzer.NewTypeScript() }

// NewMemoryBackend returns a volatile in-process cache backend.
func NewMemoryBackend() Backend { return cachestore.NewMemoryBackend() }

// NewFileBackend returns a durable cache backend rooted at dir.
func NewFileBackend(dir string) Backend { return cachestore.NewFileBackend(dir) }

// NewSQLiteBackend returns a durable cache backend stored in a single
// SQLite database file.
func NewSQLiteBackend(path string) (Backend, error) { return cachestore.NewSQLiteBackend(path) }
