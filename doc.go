// Package lattice provides an incremental discovery and dependency-graph
// engine for source trees. It fingerprints files, parses each file exactly
// once per content version, persists the extracted facts in a versioned
// content-addressed cache, and maintains forward and reverse dependency
// adjacency so that repeated builds only re-examine what changed.
//
// # Pipeline
//
// A build runs in three phases:
//
//  1. Discover: resolve entry paths (verbatim or glob), then walk the
//     import graph in parallel waves. Each file is fingerprinted and
//     either served from the snapshot cache or parsed with tree-sitter
//     and re-cached.
//
//  2. Graph: assemble forward and reverse adjacency from every snapshot's
//     resolved dependency edges. The reverse map is always the exact
//     transpose of the forward map.
//
//  3. Evaluate: classify each module's declarations into semantic buckets
//     (model, slice, operation, helper) in dependency-first order,
//     assigning globally unique canonical IDs of the form
//     "{absolutePath}::{exportPath}".
//
// # Usage
//
// Create a Session, build, then feed it changesets:
//
//	s, err := lattice.NewSession("path/to/project", []string{"src/index.ts"})
//	if err != nil { ... }
//
//	ctx := context.Background()
//	state, err := s.BuildInitial(ctx)
//	state, err = s.Update(ctx, lattice.Changeset{Modified: []string{"src/app.ts"}})
//
// [Session.Update] re-discovers and re-evaluates only the changed files
// and their transitive dependents, computed against the previous graph.
// When the configured schema hash or the analyzer version changes, Update
// declines incremental work and rebuilds from scratch.
//
// # Caching
//
// Snapshots live in a namespaced, versioned cache behind the pluggable
// [Backend] interface. Three backends ship with the module: a volatile
// in-process map, a durable one-file-per-record store, and a SQLite
// database. All three satisfy the same observable contract; callers pick
// persistence, the engine never does.
//
// # Scripts
//
// Dynamic module evaluation is delegated to an optional Risor hook script
// (import_module.risor) loaded from the directory given to
// [WithScriptsDir]. The script sees the module's path, signature, exports,
// and definitions as globals; its result is returned to the evaluator, and
// its failures degrade to per-module warnings.
package lattice
