// Package evalscript provides the scriptable evaluation context: an
// implementation of the evaluator's Context contract whose dynamic-import
// capability runs a caller-supplied Risor hook script against the module
// being evaluated. With no hook configured, imports resolve to a static
// description derived from the module's snapshot.
package evalscript

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"lattice/internal/discovery"
)

// ImportHookScript is the hook file name looked up under the scripts
// directory.
const ImportHookScript = "import_module.risor"

// Host exposes a snapshot set to module evaluation.
type Host struct {
	snapshots  map[string]discovery.Snapshot
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithScriptsDir points the host at a directory of .risor hook scripts.
func WithScriptsDir(dir string) HostOption {
	return func(h *Host) { h.scriptsDir = dir }
}

// WithFS loads hook scripts from an fs.FS instead of from disk.
func WithFS(fsys fs.FS) HostOption {
	return func(h *Host) { h.fsys = fsys }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost creates a Host over the given snapshots, keyed by normalized
// path.
func NewHost(snapshots map[string]discovery.Snapshot, opts ...HostOption) *Host {
	h := &Host{
		snapshots: snapshots,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetSnapshot returns the snapshot recorded for path.
func (h *Host) GetSnapshot(path string) (discovery.Snapshot, bool) {
	snap, ok := h.snapshots[path]
	return snap, ok
}

// Resolve maps an import specifier written in fromFile to an absolute
// path, or "" when nothing resolves.
func (h *Host) Resolve(specifier, fromFile string) string {
	return discovery.ResolveSpecifier(fromFile, specifier)
}

// ImportModule evaluates the module at path. When a hook script is
// configured it runs in a Risor VM with the module's facts as globals and
// its result is returned; otherwise a static description is returned.
// Never panics; script failures come back as errors for the evaluator to
// downgrade into issues.
func (h *Host) ImportModule(ctx context.Context, path string) (any, error) {
	snap, ok := h.snapshots[path]
	if !ok {
		return nil, fmt.Errorf("evalscript: no snapshot for %s", path)
	}

	source, err := h.loadHook()
	if err != nil {
		return nil, err
	}
	if source == "" {
		return staticModule(snap), nil
	}

	globals := map[string]any{
		"module_path": path,
		"signature":   snap.Signature,
		"exports":     snap.Analysis.Exports,
		"definitions": definitionMaps(snap),
		"log":         mustProxy(&scriptLog{logger: h.logger}),
	}

	opts := make([]risor.Option, 0, len(globals)+1)
	globalNames := make([]string, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
		globalNames = append(globalNames, name)
	}
	if imp := h.buildImporter(globalNames); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("evalscript: hook for %s: %w", path, err)
	}
	return result, nil
}

// loadHook returns the hook source, or "" when no hook is configured or
// present.
func (h *Host) loadHook() (string, error) {
	if h.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(ImportHookScript), "/")
		data, err := fs.ReadFile(h.fsys, fsPath)
		if err != nil {
			if os.IsNotExist(err) {
				return "", nil
			}
			return "", fmt.Errorf("evalscript: loading hook from fs: %w", err)
		}
		return string(data), nil
	}
	if h.scriptsDir == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(h.scriptsDir, ImportHookScript))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("evalscript: loading hook: %w", err)
	}
	return string(data), nil
}

func (h *Host) buildImporter(globalNames []string) importer.Importer {
	if h.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    h.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if h.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   h.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// staticModule is the hook-less fallback: the module's observable surface
// as plain maps.
func staticModule(snap discovery.Snapshot) map[string]any {
	return map[string]any{
		"path":        snap.FilePath,
		"signature":   snap.Signature,
		"exports":     snap.Analysis.Exports,
		"definitions": definitionMaps(snap),
	}
}

func definitionMaps(snap discovery.Snapshot) []map[string]any {
	defs := make([]map[string]any, 0, len(snap.Analysis.Definitions))
	for _, def := range snap.Analysis.Definitions {
		defs = append(defs, map[string]any{
			"exportName": def.ExportName,
			"astPath":    def.ASTPath,
			"isExported": def.IsExported,
			"expression": def.Expression,
			"line":       def.Loc.Line,
		})
	}
	return defs
}

// scriptLog is the "log" global handed to hook scripts.
type scriptLog struct {
	logger *slog.Logger
}

func (l *scriptLog) Info(msg string)  { l.logger.Info(msg, "source", "hook") }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg, "source", "hook") }
func (l *scriptLog) Debug(msg string) { l.logger.Debug(msg, "source", "hook") }

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("evalscript: proxy error: %v", err))
	}
	return p
}
