package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	syncerrors "github.com/photonlabs/embedsync/internal/errors"
)

// CLIP sidecar constants.
const (
	// DefaultClipHost is the default CLIP sidecar endpoint.
	DefaultClipHost = "http://localhost:7878"

	// clipConnectTimeout bounds the initial health check.
	clipConnectTimeout = 5 * time.Second

	// clipPoolSize for the HTTP connection pool.
	clipPoolSize = 4
)

// ClipConfig configures the CLIP sidecar embedder.
type ClipConfig struct {
	// Host is the sidecar endpoint (default: http://localhost:7878).
	Host string

	// Model is the model tag requested from the sidecar.
	Model string

	// Dimensions is the expected vector length.
	Dimensions int

	// Timeout for a single inference request.
	Timeout time.Duration

	// SkipHealthCheck skips the initial availability probe (for testing).
	SkipHealthCheck bool

	// State receives lifecycle transitions observed during health checks.
	State *StateTracker
}

// ClipEmbedder generates embeddings through a local CLIP sidecar's HTTP API.
// The sidecar owns model download and GPU/CPU inference; this client only
// validates output length and normalizes classification of failures.
type ClipEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    ClipConfig
}

// Verify interface implementation at compile time
var _ Embedder = (*ClipEmbedder)(nil)

// clipEmbedRequest is the request body for both embed endpoints.
type clipEmbedRequest struct {
	Model string `json:"model"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // base64-encoded content
}

// clipEmbedResponse is the response body for both embed endpoints.
type clipEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// clipHealthResponse reports the sidecar's model lifecycle.
type clipHealthResponse struct {
	State string `json:"state"` // downloading | loading | ready
	Model string `json:"model"`
}

// NewClipEmbedder creates a CLIP sidecar embedder and probes its health.
func NewClipEmbedder(ctx context.Context, cfg ClipConfig) (*ClipEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultClipHost
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        clipPoolSize,
		MaxIdleConnsPerHost: clipPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &ClipEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, clipConnectTimeout)
		defer cancel()
		if err := e.probe(checkCtx); err != nil {
			transport.CloseIdleConnections()
			if cfg.State != nil {
				cfg.State.SetFailed(err)
			}
			return nil, fmt.Errorf("failed to connect to CLIP sidecar: %w", err)
		}
	}
	return e, nil
}

// probe queries /api/health and records the sidecar's lifecycle state.
func (e *ClipEmbedder) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}

	var health clipHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	if e.config.State != nil {
		switch health.State {
		case "downloading":
			e.config.State.Set(StateDownloading)
		case "loading":
			e.config.State.Set(StateLoading)
		case "ready":
			e.config.State.Set(StateReady)
		}
	}
	return nil
}

// EmbedImage embeds raw image content via the sidecar.
func (e *ClipEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return e.embed(ctx, clipEmbedRequest{
		Model: e.config.Model,
		Image: base64.StdEncoding.EncodeToString(data),
	}, "/api/embed/image")
}

// EmbedText embeds query text via the sidecar.
func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, clipEmbedRequest{
		Model: e.config.Model,
		Text:  text,
	}, "/api/embed/text")
}

// embed posts a single inference request and validates the response vector.
func (e *ClipEmbedder) embed(ctx context.Context, reqBody clipEmbedRequest, path string) ([]float32, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, syncerrors.EmbeddingError("failed to encode request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, syncerrors.EmbeddingError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, syncerrors.EmbeddingError("inference request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, syncerrors.EmbeddingError(
			fmt.Sprintf("sidecar returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var out clipEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, syncerrors.EmbeddingError("failed to decode response", err)
	}
	if len(out.Embedding) != e.config.Dimensions {
		return nil, syncerrors.DimensionMismatchError(len(out.Embedding), e.config.Dimensions)
	}
	return normalizeVector(out.Embedding), nil
}

// Dimensions returns the embedding dimension.
func (e *ClipEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelTag returns the model identifier.
func (e *ClipEmbedder) ModelTag() string {
	return e.config.Model
}

// Available probes the sidecar's health endpoint.
func (e *ClipEmbedder) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, clipConnectTimeout)
	defer cancel()
	return e.probe(checkCtx) == nil
}

// Close releases pooled connections.
func (e *ClipEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
