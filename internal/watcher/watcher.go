// Package watcher provides file system watching with automatic re-indexing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/trigrep/trigrep/internal/indexer"
)

// Watcher watches a root for file changes and re-runs the indexing job
// when changes settle. Re-indexing is cheap: the job skips every file
// whose recorded modification time is already current, so a flush only
// re-reads what actually changed.
//
// Deleted and renamed-away files stay in the index until it is rebuilt;
// the index has no removal operation.
type Watcher struct {
	root string
	svc  *indexer.Service

	// debounce holds pending file events to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for file events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a new file watcher that re-indexes root through svc.
func New(root string, svc *indexer.Service, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		svc:          svc,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for file changes. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds all directories to the watcher.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != w.root {
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if w.shouldSkipDir(name) {
				return filepath.SkipDir
			}
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// shouldSkipDir returns true if directory should not be watched.
func (w *Watcher) shouldSkipDir(name string) bool {
	skipDirs := []string{
		"node_modules", "vendor", "dist", "build", "out", "target",
		"bin", "obj", ".git", ".idea", ".vscode", "__pycache__",
		"coverage", ".nyc_output",
	}
	for _, skip := range skipDirs {
		if name == skip {
			return true
		}
	}
	return false
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	// Skip hidden files
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	// For new directories, add to watcher
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.shouldSkipDir(filepath.Base(path)) {
				watcher.Add(path)
				log.Debug("Added directory to watch", "path", path)
			}
			return
		}
	}

	// Skip directories for file operations
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] = event.Op
	w.debounceMu.Unlock()
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced re-indexes the root once for all pending events.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}
	events := w.debounce
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	changed := 0
	for path, op := range events {
		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			relPath = path
		}
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			log.Debug("File removed; index entry retained until rebuild", "file", relPath)
			w.onEvent("remove", relPath)
			continue
		}
		w.onEvent("change", relPath)
		changed++
	}
	if changed == 0 {
		return
	}

	done := make(chan struct{})
	w.svc.IndexPath(w.root, indexer.Callbacks{
		OnDone: func() { close(done) },
	})

	select {
	case <-ctx.Done():
	case <-done:
		log.Info("Re-indexed after changes", "root", w.root, "changed", changed)
	}
}
