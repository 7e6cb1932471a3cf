package discovery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/analyzer"
	"lattice/internal/cachestore"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newDiscoverer(t *testing.T, dir string) *Discoverer {
	t.Helper()
	return New(dir, analyzer.NewTypeScript(), cachestore.NewMemoryBackend(), WithWorkers(2))
}

func snapshotPaths(result *Result) []string {
	paths := make([]string, 0, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		paths = append(paths, snap.FilePath)
	}
	return paths
}

func TestDiscover_WalksImportChain(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import { b } from "./b"; export const a = 1;`)
	b := writeFile(t, dir, "b.ts", `import { c } from "./c"; export const b = 2;`)
	c := writeFile(t, dir, "c.ts", `export const c = 3;`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{a, b, c}, snapshotPaths(result))
	assert.Equal(t, 0, result.CacheHits)
	assert.Equal(t, 3, result.CacheMisses)
}

func TestDiscover_SecondRunHitsCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./b"; export const a = 1;`)
	writeFile(t, dir, "b.ts", `export const b = 2;`)

	d := newDiscoverer(t, dir)
	first, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	require.Equal(t, 2, first.CacheMisses)

	second, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, 0, second.CacheMisses)

	sigOf := func(r *Result, path string) string {
		for _, snap := range r.Snapshots {
			if snap.FilePath == path {
				return snap.Signature
			}
		}
		return ""
	}
	for _, snap := range first.Snapshots {
		assert.Equal(t, snap.Signature, sigOf(second, snap.FilePath))
	}
}

func TestDiscover_ModifiedFileMissesOnlyItself(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./b"; export const a = 1;`)
	b := writeFile(t, dir, "b.ts", `export const b = 2;`)

	d := newDiscoverer(t, dir)
	_, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)

	writeFile(t, dir, "b.ts", `export const b = 99;`)

	result, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CacheHits)
	assert.Equal(t, 1, result.CacheMisses)

	for _, snap := range result.Snapshots {
		if snap.FilePath == b {
			assert.Contains(t, snap.Analysis.Definitions[0].Expression, "99")
		}
	}
}

func TestDiscover_GlobEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.ts", `export const a = 1;`)
	writeFile(t, dir, "src/b.ts", `export const b = 2;`)
	writeFile(t, dir, "src/skip.md", `# not code`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"src/*.ts"})
	require.NoError(t, err)
	assert.Len(t, result.Snapshots, 2)
}

func TestDiscover_UnmatchedGlobTolerated(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const a = 1;`)

	result, err := newDiscoverer(t, dir).Discover(
		context.Background(),
		[]string{"a.ts", "missing-glob-*.ts"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, snapshotPaths(result))
	assert.Equal(t, []string{"missing-glob-*.ts"}, result.UnmatchedPatterns)
}

func TestDiscover_NoEntryResolves(t *testing.T) {
	dir := t.TempDir()

	_, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"nope.ts", "missing-*.ts"})
	require.Error(t, err)
	assert.True(t, IsEntryNotFound(err))
	assert.Contains(t, err.Error(), "missing-*.ts")
}

func TestDiscover_ParseErrorIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./broken"; export const a = 1;`)
	broken := writeFile(t, dir, "broken.ts", `export const = {{{`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)

	for _, snap := range result.Snapshots {
		if snap.FilePath == broken {
			assert.NotEmpty(t, snap.Diagnostics())
		}
	}
}

func TestDiscover_ExternalImportsNotTraversed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import react from "react"; import "./b";`)
	writeFile(t, dir, "b.ts", `export const b = 1;`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)

	var entry Snapshot
	for _, snap := range result.Snapshots {
		if filepath.Base(snap.FilePath) == "a.ts" {
			entry = snap
		}
	}
	require.Len(t, entry.Dependencies, 2)
	byName := make(map[string]Dependency)
	for _, dep := range entry.Dependencies {
		byName[dep.Specifier] = dep
	}
	assert.True(t, byName["react"].IsExternal)
	assert.Empty(t, byName["react"].ResolvedPath)
	assert.False(t, byName["./b"].IsExternal)
	assert.NotEmpty(t, byName["./b"].ResolvedPath)
}

func TestDiscover_UnresolvableRelativeImportRecorded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./ghost";`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)

	deps := result.Snapshots[0].Dependencies
	require.Len(t, deps, 1)
	assert.False(t, deps[0].IsExternal)
	assert.Empty(t, deps[0].ResolvedPath)
}

func TestDiscover_DirectoryIndexResolution(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./lib";`)
	index := writeFile(t, dir, "lib/index.ts", `export const lib = 1;`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Contains(t, snapshotPaths(result), index)
}

func TestDiscover_CycleTerminates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.ts", `import "./y"; export const x = 1;`)
	writeFile(t, dir, "y.ts", `import "./x"; export const y = 2;`)

	result, err := newDiscoverer(t, dir).Discover(context.Background(), []string{"x.ts"})
	require.NoError(t, err)
	assert.Len(t, result.Snapshots, 2)
}

func TestDiscover_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `export const a = 1;`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newDiscoverer(t, dir).Discover(ctx, []string{"a.ts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, IsEntryNotFound(err))
}

func TestDiscover_AnalyzerVersionInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `export const a = 1;`)
	backend := cachestore.NewMemoryBackend()

	first := New(dir, analyzer.NewTypeScript(), backend)
	_, err := first.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)

	// Same backend, different analyzer version: no hits.
	second := New(dir, versionedAnalyzer{analyzer.NewTypeScript()}, backend)
	result, err := second.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CacheHits)
	assert.Equal(t, 1, result.CacheMisses)
}

type versionedAnalyzer struct{ analyzer.Analyzer }

func (versionedAnalyzer) Version() string { return "test-bump" }

func TestDiscover_EvictDropsSnapshot(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const a = 1;`)

	d := newDiscoverer(t, dir)
	_, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)

	require.NoError(t, d.Evict(a))

	result, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CacheMisses)
}

func TestProcessFile_VanishedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	d := newDiscoverer(t, dir)

	// Deleted between the serial claim and the worker's read.
	task := d.processFile(filepath.Join(dir, "gone.ts"))

	assert.True(t, task.skip)
	assert.NoError(t, task.err)
}

func TestDiscover_VanishedEntryNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.ts", `import "./b"; export const a = 1;`)
	writeFile(t, dir, "b.ts", `export const b = 2;`)

	d := newDiscoverer(t, dir)
	require.NoError(t, os.Remove(path))

	// a.ts still resolves as a dependency target check, but processing the
	// missing file must skip it rather than abort the run.
	task := d.processFile(path)
	assert.True(t, task.skip)

	result, err := d.Discover(context.Background(), []string{"b.ts"})
	require.NoError(t, err)
	assert.Len(t, result.Snapshots, 1)
}

// flakyBackend fails reads on demand while writes keep working.
type flakyBackend struct {
	cachestore.Backend
	failLoads bool
}

func (b *flakyBackend) Load(ns []string, key string) ([]byte, bool, error) {
	if b.failLoads {
		return nil, false, errors.New("backend down")
	}
	return b.Backend.Load(ns, key)
}

func TestDiscover_CacheReadFailureDegradesToParse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `export const a = 1;`)

	backend := &flakyBackend{Backend: cachestore.NewMemoryBackend()}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	d := New(dir, analyzer.NewTypeScript(), backend, WithWorkers(1), WithLogger(logger))

	first, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	require.Equal(t, 1, first.CacheMisses)

	backend.failLoads = true
	second, err := d.Discover(context.Background(), []string{"a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheMisses)
	assert.Equal(t, 0, second.CacheHits)
	assert.Contains(t, logs.String(), "snapshot cache read failed")
}
