// Package embed provides the inference backends that turn raw content
// and query text into fixed-length, unit-normalized vectors.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultDimensions is the vector length of the default CLIP model.
	DefaultDimensions = 512

	// DefaultTimeout is the default timeout for a single inference request.
	DefaultTimeout = 60 * time.Second

	// DefaultQueryCacheSize is the default capacity of the query-text
	// embedding cache.
	DefaultQueryCacheSize = 20
)

// Embedder generates vector embeddings for content and text.
// Implementations must return unit-normalized vectors of Dimensions() length.
type Embedder interface {
	// EmbedImage generates an embedding for raw image content.
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)

	// EmbedText generates an embedding for query text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelTag returns the model identifier persisted with embeddings.
	ModelTag() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
