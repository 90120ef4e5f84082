package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/photonlabs/embedsync/internal/config"
)

// OpenAIKeyEnv is the environment variable holding the OpenAI API key.
const OpenAIKeyEnv = "OPENAI_API_KEY"

// New constructs the configured inference backend and records its lifecycle
// in the given tracker. The backend choice is made once at startup; there is
// no runtime switching.
func New(ctx context.Context, cfg *config.Config, tracker *StateTracker) (Embedder, error) {
	timeout, err := cfg.EmbedTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid embed timeout: %w", err)
	}

	tracker.Set(StateLoading)

	var embedder Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		embedder = NewStaticEmbedder(cfg.Embeddings.Dimensions)
		tracker.Set(StateReady)

	case "clip":
		clip, err := NewClipEmbedder(ctx, ClipConfig{
			Host:       cfg.Embeddings.ClipHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    timeout,
			State:      tracker,
		})
		if err != nil {
			tracker.SetFailed(err)
			return nil, err
		}
		embedder = clip

	case "openai":
		oa, err := NewOpenAIEmbedder(
			os.Getenv(OpenAIKeyEnv),
			cfg.Embeddings.Model,
			cfg.Embeddings.OpenAIBaseURL,
			cfg.Embeddings.Dimensions,
		)
		if err != nil {
			tracker.SetFailed(err)
			return nil, err
		}
		embedder = oa
		tracker.Set(StateReady)

	default:
		err := fmt.Errorf("unknown embeddings provider: %q", cfg.Embeddings.Provider)
		tracker.SetFailed(err)
		return nil, err
	}

	slog.Info("embedder initialized",
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("model", embedder.ModelTag()),
		slog.Int("dimensions", embedder.Dimensions()))

	return NewCachedEmbedder(embedder, cfg.Search.QueryCacheSize), nil
}
