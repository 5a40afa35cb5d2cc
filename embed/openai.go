package embed

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Default settings for the OpenAI embedder.
const (
	DefaultOpenAIModel      = string(openai.SmallEmbedding3)
	DefaultOpenAIDimensions = 1536
	maxOpenAIBatch          = 128
)

// OpenAIEmbedder calls the OpenAI embeddings API.
//
// Thread Safety: safe for concurrent use; the underlying client is.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithOpenAIModel overrides the embedding model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithOpenAIDimensions overrides the expected vector length.
func WithOpenAIDimensions(dims int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if dims > 0 {
			e.dimensions = dims
		}
	}
}

// WithOpenAIBaseURL points the client at a compatible endpoint, e.g. a
// local inference server.
func WithOpenAIBaseURL(apiKey, baseURL string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		e.client = openai.NewClientWithConfig(cfg)
	}
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      DefaultOpenAIModel,
		dimensions: DefaultOpenAIDimensions,
		logger:     slog.Default().With(slog.String("component", "openai_embedder")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimensions returns the configured vector length.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed requests vectors for the given texts, batching requests to stay
// under the API's input limit.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxOpenAIBatch {
		end := start + maxOpenAIBatch
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("%w: requested %d vectors, got %d",
				ErrEmbeddingFailed, end-start, len(resp.Data))
		}

		for _, item := range resp.Data {
			if len(item.Embedding) != e.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d",
					ErrDimensionMismatch, e.dimensions, len(item.Embedding))
			}
			out = append(out, item.Embedding)
		}
	}

	e.logger.DebugContext(ctx, "embedded batch",
		slog.Int("texts", len(texts)),
		slog.String("model", e.model))
	return out, nil
}
