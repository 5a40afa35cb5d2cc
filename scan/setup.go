package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/config"
	"github.com/halcyonlabs/dupscan/embed"
	"github.com/halcyonlabs/dupscan/memory"
	"github.com/halcyonlabs/dupscan/processor"
	"github.com/halcyonlabs/dupscan/routing"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

// Components holds everything Build assembles for a scan, along with the
// cleanup for resources that need closing.
type Components struct {
	Engine *Engine

	closers []func() error
}

// Close releases held resources in reverse order.
func (c *Components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build assembles the full pipeline from configuration: parsers, memory
// monitor, processor, embedder, store, and router. Configuration problems
// surface here, before any file is touched.
func Build(ctx context.Context, cfg config.Config, root string, router *routing.Router) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	comps := &Components{}

	monitor, err := memory.NewMonitor(cfg.Memory)
	if err != nil {
		return nil, err
	}

	proc := processor.New(cfg.Processor, root, ast.DefaultRegistry(), monitor)

	embedder, err := buildEmbedder(cfg.Embedder, comps)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg.Store, comps)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}

	comps.Engine = NewEngine(cfg, proc, embedder, store, router)
	return comps, nil
}

// buildEmbedder constructs the configured embedding backend, optionally
// wrapped in the persistent cache.
func buildEmbedder(cfg config.EmbedderConfig, comps *Components) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Provider {
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: environment variable %s is empty",
				config.ErrInvalidConfig, cfg.APIKeyEnv)
		}
		var opts []embed.OpenAIOption
		if cfg.Model != "" {
			opts = append(opts, embed.WithOpenAIModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embed.WithOpenAIDimensions(cfg.Dimensions))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embed.WithOpenAIBaseURL(apiKey, cfg.BaseURL))
		}
		inner = embed.NewOpenAIEmbedder(apiKey, opts...)
	case "hashing":
		inner = embed.NewHashingEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedder provider %q", config.ErrInvalidConfig, cfg.Provider)
	}

	if cfg.CacheDir == "" {
		return inner, nil
	}
	cached, err := embed.NewCachedEmbedder(inner, cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	comps.closers = append(comps.closers, cached.Close)
	return cached, nil
}

// buildStore constructs the configured vector store wrapped in the query
// cache.
func buildStore(ctx context.Context, cfg config.StoreConfig, comps *Components) (vectorstore.Store, error) {
	var inner vectorstore.Store
	switch cfg.Backend {
	case "weaviate":
		ws, err := vectorstore.NewWeaviateStore(ctx, cfg.Weaviate)
		if err != nil {
			return nil, err
		}
		inner = ws
	case "memory":
		inner = vectorstore.NewMemoryIndex()
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
	comps.closers = append(comps.closers, inner.Close)

	return vectorstore.NewCachedStore(inner, cfg.CacheTTL()), nil
}
