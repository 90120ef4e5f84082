// Package syncer keeps the local embedding index in step with the library:
// incremental backfill of individual items, full bulk reconciliation, and the
// pause gate that holds both paths while the library is being mutated.
package syncer

import (
	"context"
	"sync"
)

// Gate pauses and resumes sync work. It starts closed; workers block in Wait
// until the gate opens. Opening and closing swap a channel, so a worker
// parked on a closed gate wakes as soon as Open is called, and a gate closed
// mid-run stops workers at their next Wait checkpoint.
type Gate struct {
	mu   sync.Mutex
	ch   chan struct{}
	open bool
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases all waiters. Idempotent.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.ch)
}

// Close makes subsequent Waits block. Idempotent.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.ch = make(chan struct{})
}

// IsOpen reports whether sync work may proceed.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate is open or the context is done.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
