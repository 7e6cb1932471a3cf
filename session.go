package lattice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lattice/internal/analyzer"
	"lattice/internal/cachestore"
	"lattice/internal/depgraph"
	"lattice/internal/discovery"
	"lattice/internal/evalscript"
	"lattice/internal/evaluator"
	"lattice/internal/observability"
)

// Session is the top-level orchestrator: it owns the discoverer, the
// dependency graph, and the evaluation results, and keeps them consistent
// across incremental updates. Methods are safe for concurrent use; builds
// and updates serialize on an internal lock.
type Session struct {
	id         string
	workDir    string
	entries    []string
	analyzer   analyzer.Analyzer
	backend    cachestore.Backend
	discoverer *discovery.Discoverer
	evaluator  *evaluator.Evaluator
	logger     *slog.Logger
	workers    int
	schemaHash string
	scriptsDir string

	mu    sync.RWMutex
	state *State
}

// State is one immutable generation of session data. A new State replaces
// the previous one on every build or update; callers holding an old State
// keep a consistent view.
type State struct {
	Snapshots        map[string]discovery.Snapshot
	Graph            *depgraph.Graph
	Evaluation       map[string]evaluator.Result
	CycleDiagnostics []string
	SchemaHash       string
	AnalyzerVersion  string
	BuiltAt          time.Time
}

// SessionSnapshot is the read-only introspection projection.
type SessionSnapshot struct {
	SessionID     string
	Built         bool
	SnapshotCount int
	GraphNodes    int
	GraphEdges    int
	IssueCount    int
	CycleCount    int
	CacheVersion  string
	BuiltAt       time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithAnalyzer replaces the default TypeScript analyzer.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(s *Session) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithCacheBackend selects the snapshot cache backend. The default is a
// volatile in-process backend.
func WithCacheBackend(backend cachestore.Backend) Option {
	return func(s *Session) {
		if backend != nil {
			s.backend = backend
		}
	}
}

// WithWorkers bounds the discovery worker pool.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchemaHash pins the caller's downstream schema. When it changes
// between updates, the session declines incremental work and rebuilds.
func WithSchemaHash(hash string) Option {
	return func(s *Session) { s.schemaHash = hash }
}

// WithScriptsDir points evaluation at a directory of Risor hook scripts.
func WithScriptsDir(dir string) Option {
	return func(s *Session) { s.scriptsDir = dir }
}

// NewSession creates a session rooted at workDir with the given discovery
// entries (paths or glob patterns).
func NewSession(workDir string, entries []string, opts ...Option) (*Session, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("lattice: at least one entry is required")
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("lattice: resolve workdir: %w", err)
	}

	s := &Session{
		id:        uuid.NewString(),
		workDir:   abs,
		entries:   append([]string(nil), entries...),
		analyzer:  analyzer.NewTypeScript(),
		backend:   cachestore.NewMemoryBackend(),
		evaluator: evaluator.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dopts := []discovery.Option{discovery.WithLogger(s.logger)}
	if s.workers > 0 {
		dopts = append(dopts, discovery.WithWorkers(s.workers))
	}
	s.discoverer = discovery.New(abs, s.analyzer, s.backend, dopts...)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// WorkDir returns the absolute source tree root.
func (s *Session) WorkDir() string { return s.workDir }

// BuildInitial runs full discovery, assembles the dependency graph, and
// evaluates every module dependency-first. Safe to call again; each call
// produces a fresh State.
func (s *Session) BuildInitial(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked(ctx, "full")
}

func (s *Session) buildLocked(ctx context.Context, kind string) (*State, error) {
	result, err := s.discoverer.Discover(ctx, s.entries)
	if err != nil {
		return nil, err
	}

	snapshots := make(map[string]discovery.Snapshot, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		snapshots[snap.NormalizedKey] = snap
	}

	state := s.assemble(ctx, snapshots, nil)
	s.state = state
	s.publishMetrics(state, kind)
	s.logger.Info("session built",
		"session", s.id,
		"files", len(state.Snapshots),
		"hits", result.CacheHits,
		"misses", result.CacheMisses,
		"cycles", len(state.CycleDiagnostics),
	)
	return state, nil
}

// assemble builds the graph and evaluation for a snapshot set. retained
// carries evaluation results to keep as-is (incremental updates); their
// canonical IDs seed the global uniqueness check.
func (s *Session) assemble(ctx context.Context, snapshots map[string]discovery.Snapshot, retained map[string]evaluator.Result) *State {
	deps := make(map[string][]string, len(snapshots))
	for key, snap := range snapshots {
		deps[key] = snap.LocalDependencies()
	}
	graph := depgraph.Build(deps)

	order, cycles := graph.TopoOrder()
	var cycleDiags []string
	for _, cycle := range cycles {
		cycleDiags = append(cycleDiags, fmt.Sprintf("dependency cycle: %v", cycle))
	}

	var ordered []discovery.Snapshot
	for _, key := range order {
		if snap, ok := snapshots[key]; ok {
			if _, keep := retained[key]; !keep {
				ordered = append(ordered, snap)
			}
		}
	}

	owner := make(map[string]string)
	for key, result := range retained {
		for _, def := range result.Definitions {
			owner[def.CanonicalID] = key
		}
	}

	host := s.newHost(snapshots)
	fresh, _ := s.evaluator.EvaluateWithOwners(ctx, ordered, host, owner)

	evaluation := make(map[string]evaluator.Result, len(snapshots))
	for key, result := range retained {
		evaluation[key] = result
	}
	for key, result := range fresh {
		evaluation[key] = result
	}

	return &State{
		Snapshots:        snapshots,
		Graph:            graph,
		Evaluation:       evaluation,
		CycleDiagnostics: cycleDiags,
		SchemaHash:       s.schemaHash,
		AnalyzerVersion:  s.discoverer.CacheVersion(),
		BuiltAt:          time.Now(),
	}
}

func (s *Session) newHost(snapshots map[string]discovery.Snapshot) *evalscript.Host {
	opts := []evalscript.HostOption{evalscript.WithLogger(s.logger)}
	if s.scriptsDir != "" {
		opts = append(opts, evalscript.WithScriptsDir(s.scriptsDir))
	}
	return evalscript.NewHost(snapshots, opts...)
}

// Update applies a changeset incrementally: removed files drop out of the
// snapshot set and cache, changed files and their transitive dependents
// are re-discovered and re-evaluated, and everything else is carried over
// untouched. When the schema hash or analyzer version no longer matches
// the previous state, the whole session is rebuilt instead; partial graphs
// are never trusted across a format boundary.
func (s *Session) Update(ctx context.Context, change Changeset) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return s.buildLocked(ctx, "full")
	}
	if s.state.SchemaHash != s.schemaHash || s.state.AnalyzerVersion != s.discoverer.CacheVersion() {
		s.logger.Warn("schema or analyzer version changed, falling back to full rebuild", "session", s.id)
		return s.buildLocked(ctx, "full_fallback")
	}
	if change.Empty() {
		return s.state, nil
	}

	prev := s.state

	removed := s.normalize(change.Removed)
	changed := append(s.normalize(change.Added), s.normalize(change.Modified)...)

	// The blast radius comes from the previous graph: dependents of a
	// changed or removed file need re-evaluation even if their own content
	// is untouched.
	affected := make(map[string]bool)
	for _, key := range prev.Graph.AffectedBy(append(append([]string(nil), changed...), removed...)) {
		affected[key] = true
	}

	snapshots := make(map[string]discovery.Snapshot, len(prev.Snapshots))
	for key, snap := range prev.Snapshots {
		snapshots[key] = snap
	}
	for _, key := range removed {
		delete(snapshots, key)
		delete(affected, key)
		if err := s.discoverer.Evict(key); err != nil {
			return nil, fmt.Errorf("evict %s: %w", key, err)
		}
		// Direct dependents recorded an edge to the removed file; force a
		// re-parse so the stale edge drops out of the rebuilt graph.
		for _, dependent := range prev.Graph.Dependents(key) {
			if _, ok := snapshots[dependent]; ok {
				if err := s.discoverer.Evict(dependent); err != nil {
					return nil, fmt.Errorf("evict %s: %w", dependent, err)
				}
			}
		}
	}

	// An added file may satisfy an import that previously resolved to
	// nothing; dependents with unresolved relative imports re-parse so
	// their edges can bind.
	if len(change.Added) > 0 {
		for key, snap := range snapshots {
			if affected[key] {
				continue
			}
			for _, dep := range snap.Dependencies {
				if !dep.IsExternal && dep.ResolvedPath == "" {
					affected[key] = true
					if err := s.discoverer.Evict(key); err != nil {
						return nil, fmt.Errorf("evict %s: %w", key, err)
					}
					break
				}
			}
		}
	}

	// Re-discover scoped to the changed files plus affected survivors;
	// unchanged dependents come back as cache hits.
	scope := make([]string, 0, len(affected))
	for key := range affected {
		if _, ok := snapshots[key]; ok || contains(changed, key) {
			scope = append(scope, key)
		}
	}
	sort.Strings(scope)

	if len(scope) > 0 {
		result, err := s.discoverer.Discover(ctx, scope)
		if err != nil {
			if discovery.IsEntryNotFound(err) {
				// Every file in scope vanished between the event and now;
				// treat as pure removal.
				for _, key := range scope {
					delete(snapshots, key)
				}
			} else {
				return nil, err
			}
		} else {
			for _, snap := range result.Snapshots {
				prior, had := snapshots[snap.NormalizedKey]
				snapshots[snap.NormalizedKey] = snap
				// A file merely walked through with an unchanged signature
				// keeps its prior evaluation.
				if !had || prior.Signature != snap.Signature {
					affected[snap.NormalizedKey] = true
				}
			}
		}
	}

	retained := make(map[string]evaluator.Result)
	for key, result := range prev.Evaluation {
		if _, present := snapshots[key]; present && !affected[key] {
			retained[key] = result
		}
	}

	state := s.assemble(ctx, snapshots, retained)
	s.state = state
	s.publishMetrics(state, "incremental")
	s.logger.Info("session updated",
		"session", s.id,
		"added", len(change.Added),
		"modified", len(change.Modified),
		"removed", len(change.Removed),
		"affected", len(affected),
	)
	return state, nil
}

// Snapshot returns the read-only introspection projection of the current
// state. It never mutates the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SessionSnapshot{
		SessionID:    s.id,
		CacheVersion: s.discoverer.CacheVersion(),
	}
	if s.state == nil {
		return snap
	}
	snap.Built = true
	snap.SnapshotCount = len(s.state.Snapshots)
	snap.GraphNodes = s.state.Graph.NodeCount()
	snap.GraphEdges = s.state.Graph.EdgeCount()
	snap.CycleCount = len(s.state.CycleDiagnostics)
	snap.BuiltAt = s.state.BuiltAt
	for _, result := range s.state.Evaluation {
		snap.IssueCount += len(result.Issues)
	}
	return snap
}

// State returns the current immutable state generation, or nil before the
// first build.
func (s *Session) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) publishMetrics(state *State, kind string) {
	observability.GraphNodes.Set(float64(state.Graph.NodeCount()))
	observability.GraphEdges.Set(float64(state.Graph.EdgeCount()))
	observability.UpdatesTotal.WithLabelValues(kind).Inc()
}

func (s *Session) normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.workDir, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
