// Package watch turns raw filesystem events into debounced changesets
// suitable for incremental session updates. Events within the debounce
// window collapse into one changeset; a create followed by a write stays
// an add, and a remove wins over anything before it.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"lattice/internal/analyzer"
	"lattice/internal/observability"
)

// Changeset is one debounced batch of file changes.
type Changeset struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Empty reports whether the changeset carries no paths.
func (c Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

type pendingOp int

const (
	opAdd pendingOp = iota
	opModify
	opRemove
)

// Watcher observes directories recursively and invokes onChange with a
// coalesced changeset after the debounce window closes.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	debounce    time.Duration
	excludeDirs []glob.Glob
	onChange    func(Changeset)
	logger      *slog.Logger
	callbackMu  sync.Mutex

	pending   map[string]pendingOp
	pendingMu sync.Mutex
	timer     *time.Timer
}

// New creates a Watcher. excludeDirs are glob patterns matched against
// directory base names; node_modules and dot-directories are always
// excluded.
func New(debounce time.Duration, excludeDirs []string, logger *slog.Logger, onChange func(Changeset)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		onChange:  onChange,
		logger:    logger,
		pending:   make(map[string]pendingOp),
	}
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.excludeDirs = append(w.excludeDirs, g)
	}
	return w, nil
}

// Watch registers paths (recursively for directories) and starts the event
// loop.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}
	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.shouldExcludeDir(event.Name) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
				return
			}
			w.enqueueExistingFiles(event.Name)
			return
		}
	}

	if !analyzer.SupportsFile(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.schedule(event.Name, opRemove)
	case event.Op.Has(fsnotify.Create):
		w.schedule(event.Name, opAdd)
	case event.Op.Has(fsnotify.Write):
		w.schedule(event.Name, opModify)
	}
}

func (w *Watcher) schedule(path string, op pendingOp) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	prior, exists := w.pending[path]
	switch {
	case !exists:
		w.pending[path] = op
	case op == opRemove:
		w.pending[path] = opRemove
	case prior == opRemove && op != opRemove:
		// Removed then recreated within the window.
		w.pending[path] = opAdd
	case prior == opAdd:
		// A write after a create is still an add.
	default:
		w.pending[path] = op
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = make(map[string]pendingOp)
	w.pendingMu.Unlock()

	var change Changeset
	for path, op := range pending {
		switch op {
		case opAdd:
			change.Added = append(change.Added, path)
		case opModify:
			change.Modified = append(change.Modified, path)
		case opRemove:
			change.Removed = append(change.Removed, path)
		}
	}
	if change.Empty() {
		return
	}

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(change)
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	if base == "node_modules" {
		return true
	}
	if strings.HasPrefix(base, ".") && base != "." {
		return true
	}
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Close stops the event loop. Pending changes scheduled but not yet
// flushed are dropped.
func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if analyzer.SupportsFile(path) {
			w.schedule(path, opAdd)
		}
		return nil
	})
}
