// Package config defines the single configuration object consumed by the
// scan engine and CLI.
//
// All tunable thresholds live here so that adjusting the system never
// requires a code change. Configuration errors are fatal: validation runs
// before the first batch dispatches and an invalid file stops the run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/halcyonlabs/dupscan/detect"
	"github.com/halcyonlabs/dupscan/memory"
	"github.com/halcyonlabs/dupscan/processor"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

// ErrInvalidConfig indicates the configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// EmbedderConfig selects and tunes the embedding backend.
type EmbedderConfig struct {
	// Provider is "openai" or "hashing".
	Provider string `yaml:"provider" validate:"oneof=openai hashing"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Dimensions overrides the provider's default vector length.
	Dimensions int `yaml:"dimensions" validate:"gte=0"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL points the OpenAI-compatible client at another endpoint.
	BaseURL string `yaml:"base_url"`

	// CacheDir enables the persistent embedding cache when non-empty.
	CacheDir string `yaml:"cache_dir"`
}

// StoreConfig selects and tunes the vector store backend.
type StoreConfig struct {
	// Backend is "weaviate" or "memory".
	Backend string `yaml:"backend" validate:"oneof=weaviate memory"`

	// Weaviate holds backend settings when Backend is "weaviate".
	Weaviate vectorstore.WeaviateConfig `yaml:"weaviate"`

	// CacheTTLSeconds is the query cache TTL.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" validate:"gte=0"`
}

// CacheTTL returns the TTL as a duration.
func (c StoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Config is the root configuration object.
type Config struct {
	Processor processor.Config     `yaml:"processor"`
	Memory    memory.Config        `yaml:"memory"`
	Store     StoreConfig          `yaml:"store"`
	Builder   detect.BuilderConfig `yaml:"builder"`
	Weights   detect.Weights       `yaml:"risk_weights"`
	Embedder  EmbedderConfig       `yaml:"embedder"`
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		Processor: processor.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Store: StoreConfig{
			Backend:         "memory",
			Weaviate:        vectorstore.DefaultWeaviateConfig(),
			CacheTTLSeconds: int(vectorstore.DefaultCacheTTL / time.Second),
		},
		Builder: detect.DefaultBuilderConfig(),
		Weights: detect.DefaultWeights(),
		Embedder: EmbedderConfig{
			Provider:  "hashing",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// Load reads and validates a YAML configuration file. Missing file is an
// error; callers wanting pure defaults use DefaultConfig directly.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs struct tag validation plus cross-field checks.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Builder.MinSimilarity > 0 && c.Builder.MinSimilarity > detect.StructuralThreshold {
		return fmt.Errorf("%w: builder min_similarity %.2f would hide semantic and structural matches",
			ErrInvalidConfig, c.Builder.MinSimilarity)
	}

	if c.Embedder.Provider == "openai" && c.Embedder.APIKeyEnv == "" {
		return fmt.Errorf("%w: openai embedder requires api_key_env", ErrInvalidConfig)
	}

	if c.Store.Backend == "weaviate" && c.Store.Weaviate.Host == "" {
		return fmt.Errorf("%w: weaviate backend requires a host", ErrInvalidConfig)
	}

	return nil
}
