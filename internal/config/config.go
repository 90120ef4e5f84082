// Package config loads and validates embedsync configuration.
//
// Configuration is read from <library>/.embedsync.yaml when present,
// otherwise defaults are used. All durations are YAML strings parsed
// with time.ParseDuration (e.g. "4s", "250ms").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-library configuration file.
const ConfigFileName = ".embedsync.yaml"

// DataDirName is the per-library data directory holding the local index.
const DataDirName = ".embedsync"

// Config represents the complete embedsync configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Library    LibraryConfig    `yaml:"library"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Sync       SyncConfig       `yaml:"sync"`
	Search     SearchConfig     `yaml:"search"`
	Remote     RemoteConfig     `yaml:"remote"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LibraryConfig locates the content library.
type LibraryConfig struct {
	// Root is the library root directory to index.
	Root string `yaml:"root"`

	// HiddenDirs are top-level directories whose items are indexed but
	// filtered out of search results (e.g. trash, archive).
	HiddenDirs []string `yaml:"hidden_dirs"`
}

// EmbeddingsConfig configures the inference backend.
type EmbeddingsConfig struct {
	// Provider selects the backend: "clip" (local sidecar), "openai"
	// (text-only, query path), or "static" (deterministic, offline).
	Provider string `yaml:"provider"`

	// Model is the model tag persisted with every embedding.
	Model string `yaml:"model"`

	// ModelVersion is bumped to force re-indexing with a newer model.
	ModelVersion int `yaml:"model_version"`

	// Dimensions is the expected vector length. Inference output of any
	// other length is discarded as a validation failure.
	Dimensions int `yaml:"dimensions"`

	// ClipHost is the CLIP sidecar endpoint (default: http://localhost:7878).
	ClipHost string `yaml:"clip_host"`

	// OpenAIBaseURL overrides the OpenAI endpoint (empty = api.openai.com).
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// Timeout for a single inference request.
	Timeout string `yaml:"timeout"`
}

// SyncConfig tunes the backfill scheduler.
type SyncConfig struct {
	// MaxErrorCount is the failure budget per item. Items whose error
	// counter exceeds it are excluded from future backlogs.
	MaxErrorCount int `yaml:"max_error_count"`

	// Workers bounds bulk-sync parallelism. Zero means auto
	// (number of CPUs, floor 2).
	Workers int `yaml:"workers"`

	// DebounceWindow is the cache-reload coalescing window.
	DebounceWindow string `yaml:"debounce_window"`
}

// SearchConfig tunes the query engine.
type SearchConfig struct {
	// Threshold is the minimum cosine similarity for a result to be kept.
	Threshold float64 `yaml:"threshold"`

	// QueryCacheSize is the capacity of the query-embedding LRU cache.
	QueryCacheSize int `yaml:"query_cache_size"`

	// MaxResults caps the number of returned results (0 = unlimited).
	MaxResults int `yaml:"max_results"`
}

// RemoteConfig configures the remote embedding store.
type RemoteConfig struct {
	// URL is the remote store endpoint. Empty disables push/pull.
	URL string `yaml:"url"`

	// TokenEnv is the environment variable holding the auth token.
	TokenEnv string `yaml:"token_env"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Library: LibraryConfig{
			HiddenDirs: []string{"trash", "archive"},
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "clip",
			Model:        "clip-vit-b32",
			ModelVersion: 1,
			Dimensions:   512,
			ClipHost:     "http://localhost:7878",
			Timeout:      "60s",
		},
		Sync: SyncConfig{
			MaxErrorCount:  3,
			Workers:        0,
			DebounceWindow: "4s",
		},
		Search: SearchConfig{
			Threshold:      0.23,
			QueryCacheSize: 20,
			MaxResults:     50,
		},
		Remote: RemoteConfig{
			TokenEnv: "EMBEDSYNC_TOKEN",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads <root>/.embedsync.yaml if it exists, otherwise returns
// defaults with the library root filled in.
func LoadOrDefault(root string) (*Config, error) {
	path := filepath.Join(root, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Library.Root = root
		return cfg, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Library.Root == "" {
		cfg.Library.Root = root
	}
	return cfg, nil
}

// Save writes the configuration to the given file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model must not be empty")
	}
	if c.Embeddings.ModelVersion <= 0 {
		return fmt.Errorf("embeddings.model_version must be positive, got %d", c.Embeddings.ModelVersion)
	}
	switch c.Embeddings.Provider {
	case "clip", "openai", "static":
	default:
		return fmt.Errorf("embeddings.provider must be clip, openai, or static, got %q", c.Embeddings.Provider)
	}
	if c.Search.Threshold < -1.0 || c.Search.Threshold > 1.0 {
		return fmt.Errorf("search.threshold must be in [-1, 1], got %f", c.Search.Threshold)
	}
	if c.Search.QueryCacheSize <= 0 {
		return fmt.Errorf("search.query_cache_size must be positive, got %d", c.Search.QueryCacheSize)
	}
	if c.Sync.MaxErrorCount < 0 {
		return fmt.Errorf("sync.max_error_count must not be negative, got %d", c.Sync.MaxErrorCount)
	}
	if _, err := c.DebounceWindow(); err != nil {
		return fmt.Errorf("sync.debounce_window: %w", err)
	}
	if _, err := c.EmbedTimeout(); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}
	return nil
}

// DataDir returns the data directory under the library root.
func (c *Config) DataDir() string {
	return filepath.Join(c.Library.Root, DataDirName)
}

// IndexPath returns the local index database path.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir(), "index.db")
}

// DebounceWindow parses the reload debounce window.
func (c *Config) DebounceWindow() (time.Duration, error) {
	return time.ParseDuration(c.Sync.DebounceWindow)
}

// EmbedTimeout parses the inference request timeout.
func (c *Config) EmbedTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Embeddings.Timeout)
}

// Workers returns the effective bulk-sync parallelism bound.
func (c *Config) Workers() int {
	if c.Sync.Workers > 0 {
		return c.Sync.Workers
	}
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// RemoteToken reads the remote auth token from the configured env var.
func (c *Config) RemoteToken() string {
	if c.Remote.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Remote.TokenEnv)
}
