package evalscript

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/analyzer"
	"lattice/internal/discovery"
)

func testSnapshots() map[string]discovery.Snapshot {
	return map[string]discovery.Snapshot{
		"/src/app.ts": {
			FilePath:      "/src/app.ts",
			NormalizedKey: "/src/app.ts",
			AnalyzerID:    "typescript",
			Signature:     "abc123",
			Analysis: analyzer.ModuleAnalysis{
				FilePath: "/src/app.ts",
				Exports:  []string{"user"},
				Definitions: []analyzer.ModuleDefinition{
					{ExportName: "user", ASTPath: "user", IsExported: true, Expression: "model.define({})"},
				},
			},
		},
	}
}

func TestImportModule_StaticFallback(t *testing.T) {
	h := NewHost(testSnapshots())

	result, err := h.ImportModule(context.Background(), "/src/app.ts")
	require.NoError(t, err)

	mod, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/src/app.ts", mod["path"])
	assert.Equal(t, "abc123", mod["signature"])
	assert.Equal(t, []string{"user"}, mod["exports"])
}

func TestImportModule_UnknownModule(t *testing.T) {
	h := NewHost(testSnapshots())

	_, err := h.ImportModule(context.Background(), "/src/ghost.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot")
}

func TestImportModule_HookScript(t *testing.T) {
	dir := t.TempDir()
	script := `
log.Info("evaluating " + module_path)
"evaluated:" + module_path
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ImportHookScript), []byte(script), 0o644))

	h := NewHost(testSnapshots(), WithScriptsDir(dir))
	result, err := h.ImportModule(context.Background(), "/src/app.ts")
	require.NoError(t, err)

	obj, ok := result.(object.Object)
	require.True(t, ok)
	assert.Contains(t, obj.Inspect(), "evaluated:/src/app.ts")
}

func TestImportModule_HookSeesModuleFacts(t *testing.T) {
	dir := t.TempDir()
	script := `len(definitions)`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ImportHookScript), []byte(script), 0o644))

	h := NewHost(testSnapshots(), WithScriptsDir(dir))
	result, err := h.ImportModule(context.Background(), "/src/app.ts")
	require.NoError(t, err)

	obj, ok := result.(object.Object)
	require.True(t, ok)
	assert.Equal(t, "1", obj.Inspect())
}

func TestImportModule_HookFailureReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ImportHookScript), []byte(`undefined_variable_xyz`), 0o644))

	h := NewHost(testSnapshots(), WithScriptsDir(dir))
	_, err := h.ImportModule(context.Background(), "/src/app.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook")
}

func TestImportModule_MissingHookFileFallsBack(t *testing.T) {
	// Scripts dir configured but no hook file present.
	h := NewHost(testSnapshots(), WithScriptsDir(t.TempDir()))

	result, err := h.ImportModule(context.Background(), "/src/app.ts")
	require.NoError(t, err)
	_, ok := result.(map[string]any)
	assert.True(t, ok)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "a.ts")
	target := filepath.Join(dir, "b.ts")
	require.NoError(t, os.WriteFile(from, []byte("export const a = 1;"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("export const b = 2;"), 0o644))

	h := NewHost(nil)
	assert.Equal(t, target, h.Resolve("./b", from))
	assert.Equal(t, "", h.Resolve("./ghost", from))
}

func TestGetSnapshot(t *testing.T) {
	h := NewHost(testSnapshots())

	snap, ok := h.GetSnapshot("/src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "abc123", snap.Signature)

	_, ok = h.GetSnapshot("/src/ghost.ts")
	assert.False(t, ok)
}
