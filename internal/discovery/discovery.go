package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"lattice/internal/analyzer"
	"lattice/internal/cachestore"
	"lattice/internal/fingerprint"
	"lattice/internal/observability"
)

// Discoverer walks the import graph from entry paths and maintains the
// snapshot cache. Safe for repeated Discover calls; each call shares the
// same store but carries its own visited-set.
type Discoverer struct {
	workDir  string
	analyzer analyzer.Analyzer
	store    *cachestore.Store[Snapshot]
	workers  int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithWorkers bounds the parallel parse pool. Values below one fall back
// to the default.
func WithWorkers(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Discoverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(d *Discoverer) { d.now = now }
}

// New creates a Discoverer rooted at workDir. Snapshots are cached under a
// namespace derived from the analyzer's ID; the store's format version
// combines the snapshot shape version with the analyzer version, so
// bumping either invalidates every cached entry.
func New(workDir string, a analyzer.Analyzer, backend cachestore.Backend, opts ...Option) *Discoverer {
	a = analyzer.Safe(a)
	version := fmt.Sprintf("%s+%s/%s", snapshotFormatVersion, a.ID(), a.Version())
	d := &Discoverer{
		workDir:  workDir,
		analyzer: a,
		store:    cachestore.NewStore(backend, []string{"discovery", a.ID()}, version, validSnapshot),
		workers:  runtime.NumCPU(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store exposes the snapshot cache so the session can evict entries for
// removed files.
func (d *Discoverer) Store() *cachestore.Store[Snapshot] { return d.store }

// CacheVersion returns the authoritative format version of the snapshot
// store.
func (d *Discoverer) CacheVersion() string { return d.store.Version() }

// fileTask is one file claimed for the parallel parse phase.
type fileTask struct {
	path string
	hit  bool
	skip bool
	snap Snapshot
	err  error
}

// Discover resolves entries and walks the import graph in waves: claim the
// unvisited frontier, fingerprint and parse claimed files on a bounded
// worker pool, then commit snapshots and extend the frontier serially.
// Cancellation is checked between waves and surfaces as ErrCancelled.
func (d *Discoverer) Discover(ctx context.Context, entries []string) (*Result, error) {
	start := d.now()
	defer func() {
		observability.DiscoveryDuration.Observe(d.now().Sub(start).Seconds())
	}()

	frontier, unmatched, err := d.resolveEntries(entries)
	if err != nil {
		return nil, err
	}
	for _, pattern := range unmatched {
		d.logger.Warn("entry pattern matched nothing", "pattern", pattern)
	}

	result := &Result{UnmatchedPatterns: unmatched}
	visited := make(map[string]bool)

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		// Claim phase: each file enters the visited-set exactly once, so
		// no two workers ever parse or persist the same key.
		var wave []string
		for _, path := range frontier {
			if visited[path] {
				continue
			}
			visited[path] = true
			if !fileExists(path) {
				continue
			}
			wave = append(wave, path)
		}
		frontier = nil
		if len(wave) == 0 {
			break
		}

		tasks := d.processWave(wave)

		// Commit phase: persist misses, count, extend the frontier.
		for _, task := range tasks {
			if task.err != nil {
				return nil, task.err
			}
			if task.skip {
				continue
			}
			if task.hit {
				result.CacheHits++
				observability.CacheHitsTotal.Inc()
			} else {
				result.CacheMisses++
				observability.CacheMissesTotal.Inc()
				if err := d.store.Store(task.snap.NormalizedKey, task.snap); err != nil {
					return nil, fmt.Errorf("persist snapshot %s: %w", task.path, err)
				}
			}
			result.Snapshots = append(result.Snapshots, task.snap)

			for _, dep := range task.snap.LocalDependencies() {
				if !visited[dep] {
					frontier = append(frontier, dep)
				}
			}
		}
	}

	d.logger.Debug("discovery finished",
		"files", len(result.Snapshots),
		"hits", result.CacheHits,
		"misses", result.CacheMisses,
	)
	return result, nil
}

// processWave fingerprints and parses a claimed wave on the worker pool.
// Each worker creates its own parser state through the analyzer, so the
// only shared mutable structure is the concurrency-safe cache store.
func (d *Discoverer) processWave(wave []string) []fileTask {
	workers := min(d.workers, len(wave))
	if workers < 1 {
		workers = 1
	}

	workCh := make(chan string, len(wave))
	for _, path := range wave {
		workCh <- path
	}
	close(workCh)

	resultCh := make(chan fileTask, len(wave))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range workCh {
				resultCh <- d.processFile(path)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	tasks := make([]fileTask, 0, len(wave))
	for task := range resultCh {
		tasks = append(tasks, task)
	}
	return tasks
}

// processFile fingerprints one file, reuses a cached snapshot whose
// signature still matches, and parses otherwise. Parse problems live in
// the snapshot's diagnostics; only I/O failures are returned as errors.
func (d *Discoverer) processFile(path string) fileTask {
	fp, err := fingerprint.Compute(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted between claim and read.
			return fileTask{path: path, skip: true}
		}
		return fileTask{path: path, err: fmt.Errorf("fingerprint %s: %w", path, err)}
	}

	cached, ok, loadErr := d.store.Load(path)
	if loadErr != nil {
		// A failing backend degrades to a re-parse, never to stale data.
		d.logger.Warn("snapshot cache read failed", "path", path, "error", loadErr)
	}
	if loadErr == nil && ok && cached.Signature == fp.ContentHash {
		return fileTask{path: path, hit: true, snap: cached}
	}

	snap, err := d.buildSnapshot(path, fp)
	if err != nil {
		return fileTask{path: path, err: err}
	}
	return fileTask{path: path, snap: snap}
}

// buildSnapshot parses the file and derives its dependency edges.
func (d *Discoverer) buildSnapshot(path string, fp fingerprint.Fingerprint) (Snapshot, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}

	parseStart := d.now()
	analysis := d.analyzer.ParseModule(analyzer.ParseInput{
		FilePath: path,
		Source:   source,
	})
	observability.ParsingDuration.WithLabelValues(d.analyzer.ID()).Observe(d.now().Sub(parseStart).Seconds())

	snap := Snapshot{
		FilePath:        path,
		NormalizedKey:   path,
		AnalyzerID:      d.analyzer.ID(),
		Signature:       fp.ContentHash,
		CreatedAtMillis: d.now().UnixMilli(),
		Analysis:        analysis,
	}

	relative := make(map[string]bool)
	for _, spec := range analyzer.RelativeDependencies(d.analyzer, analysis) {
		relative[spec] = true
	}
	for _, imp := range analysis.Imports {
		dep := Dependency{Specifier: imp.Specifier}
		if relative[imp.Specifier] {
			dep.ResolvedPath = ResolveSpecifier(path, imp.Specifier)
		} else {
			dep.IsExternal = true
		}
		snap.Dependencies = append(snap.Dependencies, dep)
	}
	return snap, nil
}

// Evict removes a file's cached snapshot, used when the file is deleted.
func (d *Discoverer) Evict(path string) error {
	return d.store.Delete(path)
}
