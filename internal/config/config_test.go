package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	body := "work_dir: /srv/app\nentries:\n  - src/index.ts\ncache_backend: sqlite\ncache_dir: /tmp/cache\nworkers: 4\ndebounce: 1s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", cfg.WorkDir)
	assert.Equal(t, []string{"src/index.ts"}, cfg.Entries)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.Second, cfg.Debounce)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.CacheBackend = "redis"
	assert.Error(t, cfg.Validate())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LATTICE_CACHE_BACKEND", "file")
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.CacheBackend)
}
