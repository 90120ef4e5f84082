package cache

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/embedsync/internal/store"
)

const testModel = "clip-test"

// stubStore satisfies store.Store with canned GetAll results; the cache only
// exercises the read path.
type stubStore struct {
	store.Store

	embeddings []*store.Embedding
	getAlls    atomic.Int64
}

func (s *stubStore) GetAll(_ context.Context, _ string) ([]*store.Embedding, error) {
	s.getAlls.Add(1)
	return s.embeddings, nil
}

func unitVec(dims int) []float32 {
	v := make([]float32, dims)
	val := float32(1.0 / math.Sqrt(float64(dims)))
	for i := range v {
		v[i] = val
	}
	return v
}

func TestCacheReload(t *testing.T) {
	t.Run("loads computed embeddings into the snapshot", func(t *testing.T) {
		// Given a store with two valid embeddings
		st := &stubStore{embeddings: []*store.Embedding{
			{ItemID: "photos/a.jpg", ModelTag: testModel, Vector: unitVec(8)},
			{ItemID: "photos/b.jpg", ModelTag: testModel, Vector: unitVec(8)},
		}}
		c := New(st, testModel)

		// When the cache reloads
		require.NoError(t, c.Reload(context.Background()))

		// Then both entries are scannable
		assert.Equal(t, 2, c.Count())
	})

	t.Run("drops vectors violating the unit-norm invariant", func(t *testing.T) {
		// Given one valid and one badly scaled vector
		bad := unitVec(8)
		for i := range bad {
			bad[i] *= 2
		}
		st := &stubStore{embeddings: []*store.Embedding{
			{ItemID: "photos/good.jpg", ModelTag: testModel, Vector: unitVec(8)},
			{ItemID: "photos/bad.jpg", ModelTag: testModel, Vector: bad},
		}}
		c := New(st, testModel)

		// When the cache reloads
		require.NoError(t, c.Reload(context.Background()))

		// Then only the valid vector survives
		snap := c.Snapshot()
		require.Equal(t, 1, snap.Len())
		assert.Equal(t, "photos/good.jpg", snap.Entries[0].ItemID)
	})

	t.Run("swaps the snapshot wholesale", func(t *testing.T) {
		// Given a populated cache
		st := &stubStore{embeddings: []*store.Embedding{
			{ItemID: "photos/a.jpg", ModelTag: testModel, Vector: unitVec(8)},
		}}
		c := New(st, testModel)
		require.NoError(t, c.Reload(context.Background()))
		old := c.Snapshot()

		// When the store contents change and the cache reloads
		st.embeddings = []*store.Embedding{
			{ItemID: "photos/b.jpg", ModelTag: testModel, Vector: unitVec(8)},
			{ItemID: "photos/c.jpg", ModelTag: testModel, Vector: unitVec(8)},
		}
		require.NoError(t, c.Reload(context.Background()))

		// Then the old snapshot is untouched and the new one replaces it
		assert.Equal(t, 1, old.Len())
		assert.Equal(t, 2, c.Snapshot().Len())
	})

	t.Run("notifies subscribers after reload", func(t *testing.T) {
		st := &stubStore{}
		c := New(st, testModel)
		var notified atomic.Int64
		c.Subscribe(func() { notified.Add(1) })

		require.NoError(t, c.Reload(context.Background()))

		assert.Equal(t, int64(1), notified.Load())
	})
}

func TestCheckUnitNorm(t *testing.T) {
	t.Run("accepts a unit vector", func(t *testing.T) {
		assert.NoError(t, CheckUnitNorm(unitVec(512)))
	})

	t.Run("rejects a zero vector", func(t *testing.T) {
		assert.Error(t, CheckUnitNorm(make([]float32, 512)))
	})

	t.Run("rejects a vector outside tolerance", func(t *testing.T) {
		v := unitVec(4)
		v[0] += 0.01
		assert.Error(t, CheckUnitNorm(v))
	})
}

func TestReloader(t *testing.T) {
	t.Run("coalesces a burst of signals into one reload", func(t *testing.T) {
		// Given a reloader with a short window
		st := &stubStore{}
		c := New(st, testModel)
		r := NewReloader(c, 30*time.Millisecond)
		defer r.Close()

		// When five signals arrive in quick succession
		for i := 0; i < 5; i++ {
			r.Notify()
			time.Sleep(2 * time.Millisecond)
		}

		// Then exactly one reload runs after the window settles
		assert.Eventually(t, func() bool {
			return st.getAlls.Load() == 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, int64(1), st.getAlls.Load())
	})

	t.Run("a later signal produces a second reload", func(t *testing.T) {
		st := &stubStore{}
		c := New(st, testModel)
		r := NewReloader(c, 20*time.Millisecond)
		defer r.Close()

		r.Notify()
		require.Eventually(t, func() bool {
			return st.getAlls.Load() == 1
		}, time.Second, 5*time.Millisecond)

		r.Notify()
		assert.Eventually(t, func() bool {
			return st.getAlls.Load() == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("close waits for in-flight work and stops the timer", func(t *testing.T) {
		st := &stubStore{}
		c := New(st, testModel)
		r := NewReloader(c, 10*time.Millisecond)

		r.Notify()
		time.Sleep(30 * time.Millisecond)
		r.Close()
		count := st.getAlls.Load()

		// No further reloads after Close.
		r.Notify()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, count, st.getAlls.Load())
	})
}
