package embed

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// StaticEmbedder generates embeddings using a hash-based approach.
// Works without external dependencies (no network, no model download).
// Deterministic and fast, with reduced semantic quality; intended for
// offline use and tests.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3

	// imageChunkSize is the byte window hashed per bucket for image content.
	imageChunkSize = 64
)

// tokenRegex matches alphanumeric sequences
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a static embedder producing vectors of the
// given length. Zero or negative dims falls back to DefaultDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// EmbedText generates a deterministic embedding for text.
func (e *StaticEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return vec, nil
	}

	for _, token := range tokenRegex.FindAllString(trimmed, -1) {
		e.bump(vec, token, tokenWeight)
		for i := 0; i+ngramSize <= len(token); i++ {
			e.bump(vec, token[i:i+ngramSize], ngramWeight)
		}
	}
	return normalizeVector(vec), nil
}

// EmbedImage generates a deterministic embedding for raw image bytes by
// hashing fixed-size windows of the content.
func (e *StaticEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	if len(data) == 0 {
		return vec, nil
	}

	for off := 0; off < len(data); off += imageChunkSize {
		end := off + imageChunkSize
		if end > len(data) {
			end = len(data)
		}
		h := xxhash.Sum64(data[off:end])
		bucket := int(h % uint64(e.dims))
		sign := float32(1)
		if h&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	return normalizeVector(vec), nil
}

// bump hashes a term into a bucket and adds the given weight.
func (e *StaticEmbedder) bump(vec []float32, term string, weight float32) {
	h := xxhash.Sum64String(term)
	bucket := int(h % uint64(e.dims))
	sign := float32(1)
	if h&(1<<63) != 0 {
		sign = -1
	}
	vec[bucket] += sign * weight
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelTag returns the model identifier.
func (e *StaticEmbedder) ModelTag() string {
	return fmt.Sprintf("static-%d", e.dims)
}

// Available always reports true; the static embedder has no dependencies.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder as closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *StaticEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}
