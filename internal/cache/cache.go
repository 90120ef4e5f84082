// Package cache holds the in-memory view of the local embedding store that
// the query engine scans.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/photonlabs/embedsync/internal/store"
)

// NormTolerance is the allowed deviation of an embedding's Euclidean norm
// from 1.0. Cosine-similarity scoring assumes unit vectors; anything outside
// this band indicates a correctness bug upstream.
const NormTolerance = 1e-3

// Entry is one scannable embedding.
type Entry struct {
	ItemID string
	Vector []float32
}

// Snapshot is an immutable view of the cached embedding set. Snapshots are
// replaced wholesale on reload, never mutated, so readers can scan without
// locks and never observe a torn state.
type Snapshot struct {
	Entries []Entry
}

// Len returns the number of cached embeddings.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Cache materializes the local store for one model into memory.
type Cache struct {
	store    store.Store
	modelTag string

	mu        sync.RWMutex
	snap      *Snapshot
	observers []func()
}

// New creates an empty cache for the given model.
// Call Reload to populate it.
func New(st store.Store, modelTag string) *Cache {
	return &Cache{
		store:    st,
		modelTag: modelTag,
		snap:     &Snapshot{},
	}
}

// Reload fetches the full embedding set from the store, rebuilds the
// scannable view, and swaps it in atomically. Embeddings violating the
// unit-norm invariant are dropped with a warning rather than poisoning
// similarity scores. Observers are notified after the swap.
func (c *Cache) Reload(ctx context.Context) error {
	all, err := c.store.GetAll(ctx, c.modelTag)
	if err != nil {
		return fmt.Errorf("cache reload failed: %w", err)
	}

	entries := make([]Entry, 0, len(all))
	for _, emb := range all {
		if err := CheckUnitNorm(emb.Vector); err != nil {
			slog.Warn("dropping embedding with invalid norm",
				slog.String("item_id", emb.ItemID),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, Entry{ItemID: emb.ItemID, Vector: emb.Vector})
	}

	c.mu.Lock()
	c.snap = &Snapshot{Entries: entries}
	observers := make([]func(), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	slog.Debug("embedding cache reloaded", slog.Int("count", len(entries)))
	for _, fn := range observers {
		fn()
	}
	return nil
}

// Snapshot returns the current view. The returned snapshot is immutable.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Count returns the number of cached embeddings.
func (c *Cache) Count() int {
	return c.Snapshot().Len()
}

// Subscribe registers an observer called after every completed reload.
func (c *Cache) Subscribe(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// CheckUnitNorm verifies the unit-norm invariant for a vector.
func CheckUnitNorm(v []float32) error {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1.0) > NormTolerance {
		return fmt.Errorf("vector norm %f outside unit tolerance", norm)
	}
	return nil
}
