package syncer

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/library"
	"github.com/photonlabs/embedsync/internal/store"
)

const testModel = "clip-test"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sync.Workers = 2
	return cfg
}

// memStore is a threadsafe in-memory store.Store.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]*store.Embedding
	tracked map[string]struct{}
	version int64
	pushes  int
	pullErr error
	pushErr error
	putErrs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		rows:    make(map[string]*store.Embedding),
		tracked: make(map[string]struct{}),
		putErrs: make(map[string]error),
	}
}

// failPutOnce makes the next Put for itemID fail with err, then recover.
func (m *memStore) failPutOnce(itemID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErrs[itemID] = err
}

func rowKey(itemID, modelTag string) string {
	return itemID + "\x00" + modelTag
}

func (m *memStore) GetAll(_ context.Context, modelTag string) ([]*store.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Embedding, 0, len(m.rows))
	for _, r := range m.rows {
		if r.ModelTag == modelTag && r.Vector != nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetIDs(_ context.Context, modelTag string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{})
	for _, r := range m.rows {
		if r.ModelTag == modelTag && r.Vector != nil {
			ids[r.ItemID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *memStore) Has(_ context.Context, itemID, modelTag string, minVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[rowKey(itemID, modelTag)]
	return ok && r.Vector != nil && r.Version >= minVersion, nil
}

func (m *memStore) Put(_ context.Context, emb *store.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.putErrs[emb.ItemID]; ok {
		delete(m.putErrs, emb.ItemID)
		return err
	}
	cp := *emb
	cp.ErrorCount = 0
	cp.UpdatedAt = time.Now()
	m.rows[rowKey(emb.ItemID, emb.ModelTag)] = &cp
	return nil
}

func (m *memStore) RecordFailure(_ context.Context, itemID, modelTag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowKey(itemID, modelTag)
	r, ok := m.rows[key]
	if !ok || r.Vector != nil {
		r = &store.Embedding{ItemID: itemID, ModelTag: modelTag}
		m.rows[key] = r
	}
	r.ErrorCount++
	return r.ErrorCount, nil
}

func (m *memStore) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for key, r := range m.rows {
			if r.ItemID == id {
				delete(m.rows, key)
			}
		}
		delete(m.tracked, id)
	}
	return nil
}

func (m *memStore) FailedIDs(_ context.Context, modelTag string, maxErrors int) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{})
	for _, r := range m.rows {
		if r.ModelTag == modelTag && r.Vector == nil && r.ErrorCount > maxErrors {
			ids[r.ItemID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *memStore) TrackedIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{}, len(m.tracked))
	for id := range m.tracked {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *memStore) Reconcile(_ context.Context, known map[string]struct{}) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added, removed []string
	for id := range known {
		if _, ok := m.tracked[id]; !ok {
			m.tracked[id] = struct{}{}
			added = append(added, id)
		}
	}
	for id := range m.tracked {
		if _, ok := known[id]; !ok {
			delete(m.tracked, id)
			removed = append(removed, id)
			for key, r := range m.rows {
				if r.ItemID == id {
					delete(m.rows, key)
				}
			}
		}
	}
	if len(added) > 0 || len(removed) > 0 {
		m.version++
	}
	return added, removed, nil
}

func (m *memStore) IndexVersion(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

func (m *memStore) BumpIndexVersion(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	return m.version, nil
}

func (m *memStore) PushPending(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushes++
	return nil
}

func (m *memStore) PullRemote(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return false, m.pullErr
}

func (m *memStore) Close() error { return nil }

func (m *memStore) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Vector != nil {
			n++
		}
	}
	return n
}

// fakeSource serves items whose content is their own id.
type fakeSource struct {
	mu    sync.Mutex
	items map[string]library.Item
}

func newFakeSource(ids ...string) *fakeSource {
	s := &fakeSource{items: make(map[string]library.Item)}
	for _, id := range ids {
		s.items[id] = library.Item{ID: id, Path: "/lib/" + id}
	}
	return s
}

func (s *fakeSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *fakeSource) IndexableItemIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.items))
	for id := range s.items {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *fakeSource) ResolveItems(_ context.Context, ids []string) (map[string]library.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]library.Item)
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (s *fakeSource) LoadContent(_ context.Context, item library.Item) ([]byte, error) {
	return []byte(item.ID), nil
}

// fakeEmbedder produces deterministic unit vectors and counts inference
// calls. Errors can be injected per content or for every call.
type fakeEmbedder struct {
	dims    int
	calls   atomic.Int64
	mu      sync.Mutex
	failFor map[string]error
	failAll error
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims, failFor: make(map[string]error)}
}

func (e *fakeEmbedder) failOn(content string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failFor[content] = err
}

func (e *fakeEmbedder) vectorFor(content string) []float32 {
	sum := sha256.Sum256([]byte(content))
	v := make([]float32, e.dims)
	var norm float64
	for i := range v {
		v[i] = float32(sum[i%len(sum)]) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1.0 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (e *fakeEmbedder) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	err := e.failAll
	if err == nil {
		err = e.failFor[string(data)]
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.vectorFor(string(data)), nil
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	err := e.failAll
	if err == nil {
		err = e.failFor[text]
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.vectorFor(text), nil
}

func (e *fakeEmbedder) Dimensions() int                  { return e.dims }
func (e *fakeEmbedder) ModelTag() string                 { return testModel }
func (e *fakeEmbedder) Available(_ context.Context) bool { return true }
func (e *fakeEmbedder) Close() error                     { return nil }

// wrongDimsEmbedder returns vectors of the wrong length.
type wrongDimsEmbedder struct {
	*fakeEmbedder
}

func (e *wrongDimsEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	v, err := e.fakeEmbedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, err
	}
	return append(v, 0), nil
}

func openGate() *Gate {
	g := NewGate()
	g.Open()
	return g
}
