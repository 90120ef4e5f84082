// Package store persists embeddings and tracking records locally and keeps
// them in sync with the remote embedding store.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Embedding is one computed vector for an (item, model) pair.
// The (ItemID, ModelTag) pair is the primary key. A row without a vector is
// a failure record carrying only the error counter.
type Embedding struct {
	ItemID     string    `json:"item_id"`
	ModelTag   string    `json:"model_tag"`
	Vector     []float32 `json:"vector"`
	Version    int       `json:"version"`
	ErrorCount int       `json:"error_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the local embedding store adapter consumed by the sync and
// query layers.
type Store interface {
	// GetAll returns every successfully computed embedding for the model.
	GetAll(ctx context.Context, modelTag string) ([]*Embedding, error)

	// GetIDs returns the ids of items with a computed embedding.
	GetIDs(ctx context.Context, modelTag string) (map[string]struct{}, error)

	// Has reports whether a computed embedding at or above minVersion
	// exists. Used as the in-flight checkpoint read before recomputation.
	Has(ctx context.Context, itemID, modelTag string, minVersion int) (bool, error)

	// Put upserts a computed embedding, resets its error counter, and
	// marks it pending for remote push.
	Put(ctx context.Context, emb *Embedding) error

	// RecordFailure increments the item's error counter and returns the
	// new count. The failure is persisted in place of a vector.
	RecordFailure(ctx context.Context, itemID, modelTag string) (int, error)

	// DeleteMany removes all embeddings and failure records for the ids.
	DeleteMany(ctx context.Context, ids []string) error

	// FailedIDs returns ids whose error counter exceeds maxErrors.
	// These are treated as permanently failed and excluded from backlogs.
	FailedIDs(ctx context.Context, modelTag string, maxErrors int) (map[string]struct{}, error)

	// TrackedIDs returns the item ids currently tracked for indexing.
	TrackedIDs(ctx context.Context) (map[string]struct{}, error)

	// Reconcile updates tracking records to match the known item set in a
	// single transaction, removing embeddings of disappeared items and
	// bumping the index version when anything changed.
	Reconcile(ctx context.Context, known map[string]struct{}) (added, removed []string, err error)

	// IndexVersion returns the monotonically increasing index version.
	IndexVersion(ctx context.Context) (int64, error)

	// BumpIndexVersion increments and returns the index version.
	BumpIndexVersion(ctx context.Context) (int64, error)

	// PushPending pushes locally computed embeddings to the remote store.
	// A store without a remote configured succeeds trivially.
	PushPending(ctx context.Context) error

	// PullRemote fetches embeddings added remotely since the last pull.
	// Returns true if anything was fetched.
	PullRemote(ctx context.Context, modelTag string) (bool, error)

	// Close releases resources.
	Close() error
}

// RemoteClient talks to the authoritative remote embedding store.
type RemoteClient interface {
	// Push uploads locally computed embeddings.
	Push(ctx context.Context, embeddings []*Embedding) error

	// Pull returns embeddings newer than since, plus the latest remote
	// version cursor.
	Pull(ctx context.Context, modelTag string, since int64) ([]*Embedding, int64, error)
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into a float32 vector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
