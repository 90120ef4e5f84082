package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	syncerrors "github.com/photonlabs/embedsync/internal/errors"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder generates text embeddings via the OpenAI API.
// It serves text-only deployments (query path against a remotely computed
// index); EmbedImage is not supported.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
// baseURL may be empty to use the public endpoint.
func NewOpenAIEmbedder(apiKey, model, baseURL string, dims int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   dims,
	}, nil
}

// EmbedText requests a single text embedding, truncated server-side to the
// configured dimension count.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Dimensions: openai.Int(int64(e.dims)),
	})
	if err != nil {
		return nil, syncerrors.EmbeddingError("openai embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, syncerrors.EmbeddingError("openai returned no embedding", nil)
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	if len(vec) != e.dims {
		return nil, syncerrors.DimensionMismatchError(len(vec), e.dims)
	}
	return normalizeVector(vec), nil
}

// EmbedImage is not supported by the OpenAI backend.
func (e *OpenAIEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return nil, syncerrors.New(syncerrors.ErrCodeInvalidInput,
		"openai backend does not support image embedding", nil)
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelTag returns the model identifier.
func (e *OpenAIEmbedder) ModelTag() string {
	return e.model
}

// Available reports true; failures surface per request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	return true
}

// Close is a no-op for the OpenAI client.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
