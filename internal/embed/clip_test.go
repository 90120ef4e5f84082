package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/photonlabs/embedsync/internal/errors"
)

// newClipTestServer serves a minimal CLIP sidecar API returning vectors of
// the given length.
func newClipTestServer(t *testing.T, dims int, state string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(clipHealthResponse{State: state, Model: "clip-test"})
	})
	embed := func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dims)
		if dims > 0 {
			vec[0] = 1
		}
		_ = json.NewEncoder(w).Encode(clipEmbedResponse{Embedding: vec})
	}
	mux.HandleFunc("/api/embed/text", embed)
	mux.HandleFunc("/api/embed/image", embed)
	return httptest.NewServer(mux)
}

func TestClipEmbedder_EmbedText(t *testing.T) {
	// Given: a sidecar returning vectors of the expected length
	srv := newClipTestServer(t, 8, "ready")
	defer srv.Close()

	tracker := NewStateTracker()
	e, err := NewClipEmbedder(context.Background(), ClipConfig{
		Host:       srv.URL,
		Model:      "clip-test",
		Dimensions: 8,
		State:      tracker,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// When: text is embedded
	vec, err := e.EmbedText(context.Background(), "a cat")

	// Then: a unit-normalized vector of the configured length comes back
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.InDelta(t, 1.0, vectorNorm(vec), 1e-3)
	assert.Equal(t, StateReady, tracker.State())
}

func TestClipEmbedder_DimensionMismatchRejected(t *testing.T) {
	// Given: a sidecar returning wrong-length vectors
	srv := newClipTestServer(t, 4, "ready")
	defer srv.Close()

	e, err := NewClipEmbedder(context.Background(), ClipConfig{
		Host:       srv.URL,
		Dimensions: 8,
	})
	require.NoError(t, err)

	// When: content is embedded
	_, err = e.EmbedImage(context.Background(), []byte("img"))

	// Then: the output is rejected as a validation error, not persisted
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodeDimensionMismatch, syncerrors.GetCode(err))
	assert.False(t, syncerrors.IsSessionFatal(err))
}

func TestClipEmbedder_HealthReflectsDownloadState(t *testing.T) {
	srv := newClipTestServer(t, 8, "downloading")
	defer srv.Close()

	tracker := NewStateTracker()
	_, err := NewClipEmbedder(context.Background(), ClipConfig{
		Host:       srv.URL,
		Dimensions: 8,
		State:      tracker,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDownloading, tracker.State())
}

func TestClipEmbedder_UnreachableSidecarFailsConstruction(t *testing.T) {
	tracker := NewStateTracker()
	_, err := NewClipEmbedder(context.Background(), ClipConfig{
		Host:       "http://127.0.0.1:1", // nothing listens here
		Dimensions: 8,
		State:      tracker,
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, tracker.State())
}

func TestStateTracker_Transitions(t *testing.T) {
	tr := NewStateTracker()
	assert.Equal(t, StateNotInitialized, tr.State())

	tr.Set(StateLoading)
	assert.Equal(t, StateLoading, tr.State())

	tr.SetFailed(assert.AnError)
	assert.Equal(t, StateFailed, tr.State())
	assert.Equal(t, assert.AnError, tr.Err())

	tr.Set(StateReady)
	assert.Equal(t, StateReady, tr.State())
	assert.NoError(t, tr.Err())
}
