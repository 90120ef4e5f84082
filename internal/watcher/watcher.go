package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultEventWindow coalesces bursty file events (e.g. a camera import
// writing hundreds of files) into one batch.
const DefaultEventWindow = 2 * time.Second

// PathFilter decides whether a created/modified path is worth reporting.
type PathFilter func(path string) bool

// Watcher watches a library directory tree and reports newly available
// content paths in debounced batches. New subdirectories are added to the
// watch as they appear.
type Watcher struct {
	fsw       *fsnotify.Watcher
	root      string
	filter    PathFilter
	handler   func(paths []string)
	debouncer *Debouncer

	mu      sync.Mutex
	pending map[string]struct{}
	done    chan struct{}
}

// New creates a watcher over root. handler receives batches of paths that
// passed the filter, one batch per quiet window.
func New(root string, window time.Duration, filter PathFilter, handler func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultEventWindow
	}

	w := &Watcher{
		fsw:     fsw,
		root:    root,
		filter:  filter,
		handler: handler,
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	w.debouncer = NewDebouncer(window, w.flush)

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// loop consumes raw fsnotify events until the watcher closes.
func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent records relevant paths and watches new directories.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// A new directory may be an album being imported; watch it.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				slog.Warn("failed to watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if w.filter != nil && !w.filter(ev.Name) {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	w.mu.Unlock()
	w.debouncer.Trigger()
}

// flush hands the accumulated batch to the handler.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	w.handler(paths)
}

// addRecursive watches dir and all subdirectories, skipping dot-dirs.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	err := w.fsw.Close()
	<-w.done
	return err
}
