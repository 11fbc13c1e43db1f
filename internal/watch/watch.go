// Package watch is a thin fsnotify adapter that debounces filesystem
// events and triggers an incremental re-index, supplementing spec §4.7's
// one-shot Indexer with the original implementation's watch mode (not
// named as a module in its own right, but present as a CLI flag in
// original_source).
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/reflexcore/internal/obs"
)

// Watcher recursively watches root and calls onChange, debounced, whenever
// files under it are created, written, or removed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
}

// New creates a Watcher with the given debounce interval. Call Start to
// begin watching and Stop to release resources.
func New(debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, debounce: debounce, onChange: onChange}, nil
}

// Start adds recursive watches under root and begins processing events
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	if err := w.addWatches(root); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			obs.LogError("WATCH", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			obs.LogError("WATCH", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.fsw.Add(event.Name) //nolint:errcheck // best effort; a missed watch only delays that subtree's events
		}
	}

	obs.LogIndex("watch event %s for %s", event.Op, event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	w.onChange()
}
