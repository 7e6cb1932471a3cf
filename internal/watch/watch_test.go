package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectChanges(t *testing.T, dir string) (*Watcher, chan Changeset) {
	t.Helper()
	changes := make(chan Changeset, 16)
	w, err := New(50*time.Millisecond, nil, nil, func(c Changeset) {
		changes <- c
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch([]string{dir}))
	t.Cleanup(func() { w.Close() })
	return w, changes
}

func waitForChange(t *testing.T, changes chan Changeset) Changeset {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for changeset")
		return Changeset{}
	}
}

func TestWatcher_NewFileIsAdded(t *testing.T) {
	dir := t.TempDir()
	_, changes := collectChanges(t, dir)

	path := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o644))

	change := waitForChange(t, changes)
	assert.Contains(t, change.Added, path)
	assert.Empty(t, change.Removed)
}

func TestWatcher_WriteIsModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o644))

	_, changes := collectChanges(t, dir)
	require.NoError(t, os.WriteFile(path, []byte("export const a = 2;"), 0o644))

	change := waitForChange(t, changes)
	assert.Contains(t, change.Modified, path)
}

func TestWatcher_RemoveWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o644))

	_, changes := collectChanges(t, dir)
	require.NoError(t, os.WriteFile(path, []byte("export const a = 2;"), 0o644))
	require.NoError(t, os.Remove(path))

	change := waitForChange(t, changes)
	assert.Contains(t, change.Removed, path)
	assert.NotContains(t, change.Modified, path)
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	_, changes := collectChanges(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# hi"), 0o644))
	ts := filepath.Join(dir, "b.ts")
	require.NoError(t, os.WriteFile(ts, []byte("export const b = 1;"), 0o644))

	change := waitForChange(t, changes)
	assert.Equal(t, []string{ts}, change.Added)
}

func TestWatcher_CoalescesCreateThenWrite(t *testing.T) {
	dir := t.TempDir()
	_, changes := collectChanges(t, dir)

	path := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("export const a = 2;"), 0o644))

	change := waitForChange(t, changes)
	assert.Contains(t, change.Added, path)
	assert.NotContains(t, change.Modified, path)
}

func TestChangeset_Empty(t *testing.T) {
	assert.True(t, Changeset{}.Empty())
	assert.False(t, Changeset{Added: []string{"/a.ts"}}.Empty())
	assert.False(t, Changeset{Removed: []string{"/a.ts"}}.Empty())
}

func TestNew_BadExcludePattern(t *testing.T) {
	_, err := New(time.Millisecond, []string{"[unclosed"}, nil, func(Changeset) {})
	require.Error(t, err)
}
