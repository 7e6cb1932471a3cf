// Package analyzer defines the declaration-parser boundary: the contract the
// engine depends on to turn file text into structured module facts, plus a
// production TypeScript/JavaScript implementation built on tree-sitter.
//
// The engine treats analyzers as pure and exception-free; Safe wraps any
// implementation so a panic surfaces as a per-file diagnostic instead of
// taking down a discovery run.
package analyzer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Severity levels for diagnostics and evaluation issues.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Location is a 1-indexed source position.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Diagnostic is a non-fatal, file-local problem found during analysis.
type Diagnostic struct {
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Loc      Location `json:"loc"`
}

// ModuleDefinition is one top-level declaration extracted from a module.
// ASTPath is the export binding path ("User", "queries.activeUsers"); it
// feeds canonical ID construction, so nested bindings that share a local
// name still get distinct identities.
type ModuleDefinition struct {
	ExportName string   `json:"exportName"`
	ASTPath    string   `json:"astPath"`
	IsTopLevel bool     `json:"isTopLevel"`
	IsExported bool     `json:"isExported"`
	Expression string   `json:"expression"`
	Loc        Location `json:"loc"`
}

// ModuleImport is one import statement as written.
type ModuleImport struct {
	Specifier string   `json:"specifier"`
	Names     []string `json:"names,omitempty"`
	Loc       Location `json:"loc"`
}

// ModuleAnalysis is the structured fact list for one file at one content
// version. The engine treats it as opaque payload except for Signature and
// Definitions.
type ModuleAnalysis struct {
	FilePath    string             `json:"filePath"`
	Signature   string             `json:"signature"`
	Definitions []ModuleDefinition `json:"definitions"`
	Imports     []ModuleImport     `json:"imports"`
	Exports     []string           `json:"exports"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty"`
}

// ParseInput carries everything an analyzer needs for one file. Previous,
// when non-nil, is the analysis from the file's prior content version and
// may be used as a hint; analyzers must not require it.
type ParseInput struct {
	FilePath string
	Source   []byte
	Previous *ModuleAnalysis
}

// Analyzer is the external declaration-parser contract.
type Analyzer interface {
	// ID identifies the analyzer for cache namespacing.
	ID() string
	// Version changes whenever the analyzer's output shape or semantics
	// change; it invalidates cached snapshots.
	Version() string
	// ParseModule turns file text into module facts. Problems are reported
	// inline as diagnostics, never by panicking.
	ParseModule(input ParseInput) ModuleAnalysis
	// SourceHash returns the content signature the analyzer associates with
	// a source body.
	SourceHash(source []byte) string
}

// DependencyResolver is an optional analyzer capability: analyzers that
// understand their dialect's module resolution can override which import
// specifiers count as local dependencies.
type DependencyResolver interface {
	RelativeDependencies(analysis ModuleAnalysis) []string
}

// RelativeDependencies returns the specifiers from analysis that resolve
// relative to the importing file, delegating to the analyzer when it
// implements DependencyResolver.
func RelativeDependencies(a Analyzer, analysis ModuleAnalysis) []string {
	if r, ok := a.(DependencyResolver); ok {
		return r.RelativeDependencies(analysis)
	}
	var specs []string
	for _, imp := range analysis.Imports {
		if IsRelativeSpecifier(imp.Specifier) {
			specs = append(specs, imp.Specifier)
		}
	}
	return specs
}

// IsRelativeSpecifier reports whether spec is resolved relative to the
// importing file rather than through a package registry.
func IsRelativeSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".."
}

// safeAnalyzer converts panics from a wrapped analyzer into diagnostics.
type safeAnalyzer struct {
	inner Analyzer
}

// Safe wraps an analyzer so that a panic in ParseModule becomes an
// error-severity diagnostic on an otherwise empty analysis.
func Safe(inner Analyzer) Analyzer {
	if _, ok := inner.(*safeAnalyzer); ok {
		return inner
	}
	return &safeAnalyzer{inner: inner}
}

func (s *safeAnalyzer) ID() string      { return s.inner.ID() }
func (s *safeAnalyzer) Version() string { return s.inner.Version() }

func (s *safeAnalyzer) SourceHash(source []byte) string {
	return s.inner.SourceHash(source)
}

func (s *safeAnalyzer) ParseModule(input ParseInput) (analysis ModuleAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			analysis = ModuleAnalysis{
				FilePath:  input.FilePath,
				Signature: s.inner.SourceHash(input.Source),
				Diagnostics: []Diagnostic{{
					Severity: SeverityError,
					Message:  fmt.Sprintf("analyzer panic: %v", r),
					Loc:      Location{Line: 1, Column: 1},
				}},
			}
		}
	}()
	return s.inner.ParseModule(input)
}

func (s *safeAnalyzer) RelativeDependencies(analysis ModuleAnalysis) []string {
	if r, ok := s.inner.(DependencyResolver); ok {
		return r.RelativeDependencies(analysis)
	}
	var specs []string
	for _, imp := range analysis.Imports {
		if IsRelativeSpecifier(imp.Specifier) {
			specs = append(specs, imp.Specifier)
		}
	}
	return specs
}

// Extensions lists the file extensions probed when resolving an import
// specifier to a file, in priority order.
var Extensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// SupportsFile reports whether path has an extension the TypeScript analyzer
// understands.
func SupportsFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, known := range Extensions {
		if ext == known {
			return true
		}
	}
	return false
}
