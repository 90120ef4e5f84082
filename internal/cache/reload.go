package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/photonlabs/embedsync/internal/watcher"
)

// DefaultReloadWindow is the quiet period after the last change signal
// before a reload runs.
const DefaultReloadWindow = 4 * time.Second

// Reloader debounces change notifications into cache reloads. The timer is
// trailing-edge with re-arm: every signal pushes the deadline out, so a burst
// of writes produces a single reload after the burst settles. A reload
// already in progress is not cancelled; a signal arriving during it re-arms
// the timer so a follow-up reload covers the latest state.
type Reloader struct {
	cache    *Cache
	debounce *watcher.Debouncer

	mu        sync.Mutex
	reloading bool
	pending   bool
	closed    bool
	wg        sync.WaitGroup
}

// NewReloader wires a debounced reloader around the cache. window <= 0 uses
// DefaultReloadWindow.
func NewReloader(c *Cache, window time.Duration) *Reloader {
	if window <= 0 {
		window = DefaultReloadWindow
	}
	r := &Reloader{cache: c}
	r.debounce = watcher.NewDebouncer(window, r.fire)
	return r
}

// Notify records that the underlying store changed. Cheap to call from hot
// paths; the actual reload happens after the debounce window elapses.
func (r *Reloader) Notify() {
	r.debounce.Trigger()
}

func (r *Reloader) fire() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.reloading {
		// A reload is running; remember to go again once it finishes.
		r.pending = true
		r.mu.Unlock()
		return
	}
	r.reloading = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
}

func (r *Reloader) run() {
	defer r.wg.Done()
	for {
		if err := r.cache.Reload(context.Background()); err != nil {
			slog.Error("debounced cache reload failed", slog.String("error", err.Error()))
		}

		r.mu.Lock()
		if !r.pending || r.closed {
			r.reloading = false
			r.mu.Unlock()
			return
		}
		r.pending = false
		r.mu.Unlock()
	}
}

// Close stops the debounce timer and waits for any in-flight reload.
func (r *Reloader) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.debounce.Stop()
	r.wg.Wait()
}
