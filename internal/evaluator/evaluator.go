// Package evaluator classifies the declarations in discovery snapshots
// into semantic buckets and assigns canonical identifiers. Evaluation is
// total: any failure, including a misbehaving dynamic-import hook, becomes
// an issue on the result instead of an error or panic.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lattice/internal/analyzer"
	"lattice/internal/discovery"
	"lattice/internal/observability"
)

// Kind is the semantic bucket assigned to a definition.
type Kind string

const (
	KindModel     Kind = "model"
	KindSlice     Kind = "slice"
	KindOperation Kind = "operation"
	KindHelper    Kind = "helper"
)

// Definition is one evaluated declaration. CanonicalID has the form
// "{absoluteFilePath}::{exportPath}" and is globally unique across an
// evaluated set; collisions are reported, never silently resolved.
type Definition struct {
	CanonicalID string            `json:"canonicalId"`
	ExportName  string            `json:"exportName"`
	Kind        Kind              `json:"kind"`
	Loc         analyzer.Location `json:"loc"`
}

// Issue is a non-fatal evaluation problem.
type Issue struct {
	Severity    string            `json:"severity"`
	Message     string            `json:"message"`
	CanonicalID string            `json:"canonicalId,omitempty"`
	FilePath    string            `json:"filePath,omitempty"`
	Loc         analyzer.Location `json:"loc"`
}

// Result is the outcome of evaluating one module.
type Result struct {
	FilePath    string       `json:"filePath"`
	Definitions []Definition `json:"definitions,omitempty"`
	Issues      []Issue      `json:"issues,omitempty"`
}

// Context is what a module sees during evaluation. ImportModule is a
// caller-injected capability for dynamic evaluation; the evaluator makes
// no assumption about the execution model behind it and converts its
// failures into issues.
type Context interface {
	GetSnapshot(path string) (discovery.Snapshot, bool)
	Resolve(specifier, fromFile string) string
	ImportModule(ctx context.Context, path string) (any, error)
}

// Evaluator classifies definitions. Stateless apart from its logger.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanonicalID builds the globally unique identifier for an export binding.
func CanonicalID(filePath, exportPath string) string {
	return filePath + "::" + exportPath
}

// EvaluateModule evaluates one snapshot. Never panics and never returns an
// error; problems are issues on the result.
func (e *Evaluator) EvaluateModule(ctx context.Context, snap discovery.Snapshot, ec Context) (result Result) {
	result.FilePath = snap.FilePath
	defer func() {
		if r := recover(); r != nil {
			result.Issues = append(result.Issues, Issue{
				Severity: analyzer.SeverityError,
				Message:  fmt.Sprintf("evaluation panic: %v", r),
				FilePath: snap.FilePath,
				Loc:      analyzer.Location{Line: 1, Column: 1},
			})
		}
	}()

	seen := make(map[string]analyzer.Location)
	needsRuntime := false

	for _, def := range snap.Analysis.Definitions {
		kind, ok := classify(def)
		if !ok {
			continue
		}
		id := CanonicalID(snap.FilePath, def.ASTPath)

		if prior, dup := seen[id]; dup {
			result.Issues = append(result.Issues, Issue{
				Severity:    analyzer.SeverityError,
				Message:     fmt.Sprintf("duplicate canonical id %s (first defined at %d:%d, duplicate at %d:%d)", id, prior.Line, prior.Column, def.Loc.Line, def.Loc.Column),
				CanonicalID: id,
				FilePath:    snap.FilePath,
				Loc:         def.Loc,
			})
			continue
		}
		seen[id] = def.Loc

		if kind != KindHelper {
			needsRuntime = true
		}
		result.Definitions = append(result.Definitions, Definition{
			CanonicalID: id,
			ExportName:  def.ExportName,
			Kind:        kind,
			Loc:         def.Loc,
		})
	}

	if needsRuntime && ec != nil {
		if _, err := ec.ImportModule(ctx, snap.FilePath); err != nil {
			result.Issues = append(result.Issues, Issue{
				Severity: analyzer.SeverityWarning,
				Message:  fmt.Sprintf("dynamic import failed: %v", err),
				FilePath: snap.FilePath,
				Loc:      analyzer.Location{Line: 1, Column: 1},
			})
		}
	}

	for _, issue := range result.Issues {
		observability.EvaluationIssuesTotal.WithLabelValues(issue.Severity).Inc()
	}
	return result
}

// EvaluateAll evaluates snapshots in the given order (callers pass a
// dependency-first order) and enforces canonical ID uniqueness across the
// whole set. A cross-file duplicate is an error issue naming both
// definitions; the first occurrence stays in the result.
func (e *Evaluator) EvaluateAll(ctx context.Context, ordered []discovery.Snapshot, ec Context) (map[string]Result, []Issue) {
	return e.EvaluateWithOwners(ctx, ordered, ec, make(map[string]string))
}

// EvaluateWithOwners is EvaluateAll seeded with canonical IDs already
// claimed elsewhere (owner maps canonical ID to owning file). Incremental
// updates pass the IDs of results they retain so a refreshed module cannot
// silently collide with an unaffected one. The map is mutated.
func (e *Evaluator) EvaluateWithOwners(ctx context.Context, ordered []discovery.Snapshot, ec Context, owner map[string]string) (map[string]Result, []Issue) {
	results := make(map[string]Result, len(ordered))
	var crossFile []Issue

	for _, snap := range ordered {
		result := e.EvaluateModule(ctx, snap, ec)

		kept := result.Definitions[:0]
		for _, def := range result.Definitions {
			if prior, dup := owner[def.CanonicalID]; dup {
				issue := Issue{
					Severity:    analyzer.SeverityError,
					Message:     fmt.Sprintf("duplicate canonical id %s (first defined in %s, duplicate in %s)", def.CanonicalID, prior, snap.FilePath),
					CanonicalID: def.CanonicalID,
					FilePath:    snap.FilePath,
					Loc:         def.Loc,
				}
				result.Issues = append(result.Issues, issue)
				crossFile = append(crossFile, issue)
				observability.EvaluationIssuesTotal.WithLabelValues(issue.Severity).Inc()
				continue
			}
			owner[def.CanonicalID] = snap.FilePath
			kept = append(kept, def)
		}
		result.Definitions = kept

		results[snap.NormalizedKey] = result
	}
	return results, crossFile
}

// classify maps an exported declaration's bound expression to its bucket.
// Exported declarations that match no special shape are helpers; unexported
// declarations are not part of the evaluated surface regardless of shape.
func classify(def analyzer.ModuleDefinition) (Kind, bool) {
	if !def.IsExported {
		return "", false
	}
	expr := strings.TrimSpace(def.Expression)
	switch {
	case strings.HasPrefix(expr, "model."):
		return KindModel, true
	case strings.Contains(expr, ".slice("):
		return KindSlice, true
	case strings.HasPrefix(expr, "query.") || strings.HasPrefix(expr, "mutation.") || strings.HasPrefix(expr, "subscription."):
		return KindOperation, true
	default:
		return KindHelper, true
	}
}
