package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/halcyonlabs/dupscan/ast"
)

// Weaviate store defaults.
const (
	DefaultClassName   = "CodeSymbol"
	DefaultInsertChunk = 100
	DefaultMaxRetries  = 3

	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// symbolNamespace scopes the deterministic object UUIDs derived from
// symbol IDs.
var symbolNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// WeaviateConfig holds connection and behavior settings for WeaviateStore.
type WeaviateConfig struct {
	Host   string `yaml:"host" validate:"required"`
	Scheme string `yaml:"scheme" validate:"oneof=http https"`

	// ClassName is the Weaviate class objects are stored under.
	ClassName string `yaml:"class_name"`

	// PoolSize bounds concurrent requests to the server.
	PoolSize int `yaml:"pool_size" validate:"gte=0"`

	// AcquireTimeout bounds the wait for a free pool slot.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// InsertChunk is the number of objects per batch request.
	InsertChunk int `yaml:"insert_chunk" validate:"gte=0"`

	// MaxRetries is the number of attempts per chunk or query.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
}

// DefaultWeaviateConfig returns the default store configuration.
func DefaultWeaviateConfig() WeaviateConfig {
	return WeaviateConfig{
		Host:           "localhost:8080",
		Scheme:         "http",
		ClassName:      DefaultClassName,
		PoolSize:       DefaultPoolSize,
		AcquireTimeout: DefaultAcquireTimeout,
		InsertChunk:    DefaultInsertChunk,
		MaxRetries:     DefaultMaxRetries,
	}
}

// applyDefaults fills zero values with defaults.
func (c *WeaviateConfig) applyDefaults() {
	def := DefaultWeaviateConfig()
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.ClassName == "" {
		c.ClassName = def.ClassName
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.InsertChunk <= 0 {
		c.InsertChunk = def.InsertChunk
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
}

// WeaviateStore persists symbol embeddings in a Weaviate instance.
//
// Thread Safety: safe for concurrent use. The slot pool bounds in-flight
// requests.
type WeaviateStore struct {
	client *weaviate.Client
	cfg    WeaviateConfig
	pool   *slotPool
	logger *slog.Logger
}

// NewWeaviateStore connects to the configured Weaviate instance and ensures
// the symbol class exists.
func NewWeaviateStore(ctx context.Context, cfg WeaviateConfig) (*WeaviateStore, error) {
	cfg.applyDefaults()
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate host is required")
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	s := &WeaviateStore{
		client: client,
		cfg:    cfg,
		pool:   newSlotPool(cfg.PoolSize, cfg.AcquireTimeout),
		logger: slog.Default().With(slog.String("component", "weaviate_store")),
	}
	initMetrics()

	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureClass creates the symbol class if the schema does not have it yet.
func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(s.cfg.ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", s.cfg.ClassName, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.cfg.ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "symbolId", DataType: []string{"text"}},
			{Name: "name", DataType: []string{"text"}},
			{Name: "kind", DataType: []string{"text"}},
			{Name: "filePath", DataType: []string{"text"}},
			{Name: "language", DataType: []string{"text"}},
			{Name: "module", DataType: []string{"text"}},
			{Name: "startLine", DataType: []string{"int"}},
			{Name: "endLine", DataType: []string{"int"}},
			{Name: "exported", DataType: []string{"boolean"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.cfg.ClassName, err)
	}
	s.logger.InfoContext(ctx, "created weaviate class",
		slog.String("class", s.cfg.ClassName))
	return nil
}

// BatchInsert writes symbols in chunks, retrying each chunk with backoff.
func (s *WeaviateStore) BatchInsert(ctx context.Context, symbols []*ast.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	for _, sym := range symbols {
		if len(sym.Embedding) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingEmbedding, sym.ID)
		}
	}

	for start := 0; start < len(symbols); start += s.cfg.InsertChunk {
		end := start + s.cfg.InsertChunk
		if end > len(symbols) {
			end = len(symbols)
		}
		if err := s.insertChunk(ctx, symbols[start:end]); err != nil {
			return err
		}
		recordInserted(ctx, end-start)
	}
	return nil
}

// insertChunk writes one chunk with retries.
func (s *WeaviateStore) insertChunk(ctx context.Context, chunk []*ast.Symbol) error {
	objects := make([]*models.Object, len(chunk))
	for i, sym := range chunk {
		objects[i] = &models.Object{
			Class: s.cfg.ClassName,
			ID:    strfmt.UUID(uuid.NewSHA1(symbolNamespace, []byte(sym.ID)).String()),
			Properties: map[string]interface{}{
				"symbolId":  sym.ID,
				"name":      sym.Name,
				"kind":      sym.Kind.String(),
				"filePath":  sym.FilePath,
				"language":  sym.Language,
				"module":    sym.Module,
				"startLine": sym.StartLine,
				"endLine":   sym.EndLine,
				"exported":  sym.Exported,
			},
			Vector: models.C11yVector(sym.Embedding),
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.pool.acquire(ctx); err != nil {
			return err
		}
		resp, err := s.client.Batch().ObjectsBatcher().
			WithObjects(objects...).Do(ctx)
		s.pool.release()

		if err == nil {
			err = firstBatchError(resp)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < s.cfg.MaxRetries {
			delay := backoffDelay(attempt)
			s.logger.WarnContext(ctx, "batch insert attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrInsertFailed, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrInsertFailed, s.cfg.MaxRetries, lastErr)
}

// firstBatchError extracts the first per-object error from a batch response.
func firstBatchError(resp []models.ObjectsGetResponse) error {
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			if e != nil && e.Message != "" {
				return fmt.Errorf("object %s: %s", obj.ID, e.Message)
			}
		}
	}
	return nil
}

// FindSimilar runs a nearVector query, retrying with backoff. Failures are
// surfaced as errors wrapping ErrQueryFailed; an empty result only ever
// means no sufficiently similar symbols exist.
func (s *WeaviateStore) FindSimilar(ctx context.Context, q Query) ([]Match, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty probe embedding", ErrQueryFailed)
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		matches, err := s.queryOnce(ctx, q)
		if err == nil {
			recordQuery(ctx, true)
			return matches, nil
		}
		lastErr = err

		if attempt < s.cfg.MaxRetries {
			delay := backoffDelay(attempt)
			s.logger.WarnContext(ctx, "similarity query attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				recordQuery(ctx, false)
				return nil, fmt.Errorf("%w: %v", ErrQueryFailed, ctx.Err())
			}
		}
	}
	recordQuery(ctx, false)
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrQueryFailed, s.cfg.MaxRetries, lastErr)
}

// queryOnce performs a single nearVector query.
func (s *WeaviateStore) queryOnce(ctx context.Context, q Query) ([]Match, error) {
	if err := s.pool.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.pool.release()

	// Cosine distance = 1 - similarity.
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(q.Embedding).
		WithDistance(float32(1 - q.MinSimilarity))

	fields := []graphql.Field{
		{Name: "symbolId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.cfg.ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(q.TopK).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", result.Errors[0].Message)
	}

	return parseMatches(result.Data, s.cfg.ClassName)
}

// parseMatches decodes the GraphQL Get response into matches.
func parseMatches(data map[string]models.JSONObject, className string) ([]Match, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("response missing Get block")
	}
	rows, ok := get[className].([]interface{})
	if !ok {
		// Class block absent means zero matches.
		return nil, nil
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		symbolID, _ := obj["symbolId"].(string)
		if symbolID == "" {
			continue
		}
		additional, _ := obj["_additional"].(map[string]interface{})
		distance, _ := additional["distance"].(float64)
		matches = append(matches, Match{
			SymbolID:   symbolID,
			Similarity: 1 - distance,
		})
	}
	return matches, nil
}

// Close is a no-op for the HTTP-backed client.
func (s *WeaviateStore) Close() error {
	return nil
}

// backoffDelay computes exponential backoff with jitter for an attempt
// number starting at 1.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}
