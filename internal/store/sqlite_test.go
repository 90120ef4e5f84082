package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "clip-test"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putVec(t *testing.T, s *SQLiteStore, id string, vec []float32) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), &Embedding{
		ItemID:   id,
		ModelTag: testModel,
		Vector:   vec,
		Version:  1,
	}))
}

func TestSQLiteStore_PutAndGetAllRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putVec(t, s, "a", []float32{1, 0, 0})
	putVec(t, s, "b", []float32{0, 1, 0})

	all, err := s.GetAll(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byID := map[string][]float32{}
	for _, emb := range all {
		byID[emb.ItemID] = emb.Vector
	}
	assert.Equal(t, []float32{1, 0, 0}, byID["a"])
	assert.Equal(t, []float32{0, 1, 0}, byID["b"])
}

func TestSQLiteStore_GetIDsExcludesFailureRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putVec(t, s, "ok", []float32{1})
	_, err := s.RecordFailure(ctx, "broken", testModel)
	require.NoError(t, err)

	ids, err := s.GetIDs(ctx, testModel)
	require.NoError(t, err)
	assert.Contains(t, ids, "ok")
	assert.NotContains(t, ids, "broken")
}

func TestSQLiteStore_HasRespectsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putVec(t, s, "a", []float32{1}) // version 1

	has, err := s.Has(ctx, "a", testModel, 1)
	require.NoError(t, err)
	assert.True(t, has)

	// A model-version bump invalidates the old embedding
	has, err = s.Has(ctx, "a", testModel, 2)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSQLiteStore_RecordFailureCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := s.RecordFailure(ctx, "flaky", testModel)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSQLiteStore_PutResetsErrorCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordFailure(ctx, "item", testModel)
	require.NoError(t, err)
	putVec(t, s, "item", []float32{1})

	all, err := s.GetAll(ctx, testModel)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 0, all[0].ErrorCount)
}

func TestSQLiteStore_FailedIDsGating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: one item past the failure budget and one under it
	for i := 0; i < 4; i++ {
		_, err := s.RecordFailure(ctx, "dead", testModel)
		require.NoError(t, err)
	}
	_, err := s.RecordFailure(ctx, "flaky", testModel)
	require.NoError(t, err)

	// When: failed ids are fetched with a budget of 3
	failed, err := s.FailedIDs(ctx, testModel, 3)
	require.NoError(t, err)

	// Then: only the exhausted item is excluded from future backlogs
	assert.Contains(t, failed, "dead")
	assert.NotContains(t, failed, "flaky")
}

func TestSQLiteStore_Reconcile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: two tracked items, one with an embedding
	_, _, err := s.Reconcile(ctx, set("a", "b"))
	require.NoError(t, err)
	putVec(t, s, "b", []float32{1})

	v1, err := s.IndexVersion(ctx)
	require.NoError(t, err)

	// When: item b disappears and item c appears
	added, removed, err := s.Reconcile(ctx, set("a", "c"))
	require.NoError(t, err)

	// Then: tracking and embeddings follow, and the index version bumps
	assert.ElementsMatch(t, []string{"c"}, added)
	assert.ElementsMatch(t, []string{"b"}, removed)

	tracked, err := s.TrackedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, set("a", "c"), tracked)

	ids, err := s.GetIDs(ctx, testModel)
	require.NoError(t, err)
	assert.Empty(t, ids, "embeddings of disappeared items must be removed")

	v2, err := s.IndexVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}

func TestSQLiteStore_ReconcileNoChangeKeepsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Reconcile(ctx, set("a"))
	require.NoError(t, err)
	v1, err := s.IndexVersion(ctx)
	require.NoError(t, err)

	added, removed, err := s.Reconcile(ctx, set("a"))
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed)

	v2, err := s.IndexVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestSQLiteStore_DeleteMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putVec(t, s, "a", []float32{1})
	putVec(t, s, "b", []float32{1})

	require.NoError(t, s.DeleteMany(ctx, []string{"a"}))
	require.NoError(t, s.DeleteMany(ctx, nil))

	ids, err := s.GetIDs(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, set("b"), ids)
}

func TestSQLiteStore_BumpIndexVersionMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1, err := s.BumpIndexVersion(ctx)
	require.NoError(t, err)
	v2, err := s.BumpIndexVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -0.25, 1e-7, 42}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestVectorCodec_RejectsTruncatedBlob(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
