// Package watcher feeds filesystem and update signals into the sync
// pipeline, coalescing bursts so downstream work runs once per quiet period.
package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid trigger signals into a single deferred action.
// Every Trigger pushes the deadline out by the full window (trailing edge);
// the action fires once no trigger has arrived for a whole window. The
// debouncer re-arms indefinitely: a trigger after a fire schedules the next
// fire, so the last signal in any burst is always eventually covered.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer invoking fn after each quiet window.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger schedules (or reschedules) the action one window from now.
// Safe to call from any goroutine.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire runs the action unless the debouncer was stopped meanwhile.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.fn()
}

// Stop cancels any pending action. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
