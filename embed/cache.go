package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	badger "github.com/dgraph-io/badger/v4"
)

// CachedEmbedder wraps another Embedder with a persistent Badger cache.
//
// Cache keys cover the model identifier, the vector length, and a content
// hash of the text, so switching models or dimensions or editing a symbol
// invalidates its entry naturally. Entries are stored as little-endian
// float32 sequences.
//
// Thread Safety: safe for concurrent use; Badger transactions handle
// isolation.
type CachedEmbedder struct {
	inner  Embedder
	db     *badger.DB
	logger *slog.Logger
}

// NewCachedEmbedder opens (or creates) a Badger database at dir and wraps
// inner with it. Pass an empty dir for an in-memory cache.
func NewCachedEmbedder(inner Embedder, dir string) (*CachedEmbedder, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &CachedEmbedder{
		inner:  inner,
		db:     db,
		logger: slog.Default().With(slog.String("component", "embedding_cache")),
	}, nil
}

// Close releases the underlying database.
func (e *CachedEmbedder) Close() error {
	return e.db.Close()
}

// Dimensions returns the inner embedder's vector length.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Model returns the inner embedder's model identifier.
func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Embed returns cached vectors where available and delegates only the
// misses to the inner embedder. Cache write failures are logged, not
// returned: a cold cache next run costs time, not correctness.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	err := e.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(e.cacheKey(text))
			if err == badger.ErrKeyNotFound {
				missTexts = append(missTexts, text)
				missIdx = append(missIdx, i)
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				vec, decodeErr := decodeVector(val)
				if decodeErr != nil {
					return decodeErr
				}
				out[i] = vec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Treat an unreadable cache as fully cold.
		e.logger.WarnContext(ctx, "embedding cache read failed, bypassing",
			slog.Any("error", err))
		missTexts = texts
		missIdx = missIdx[:0]
		for i := range texts {
			missIdx = append(missIdx, i)
		}
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	writeErr := e.db.Update(func(txn *badger.Txn) error {
		for j, vec := range fresh {
			out[missIdx[j]] = vec
			if err := txn.Set(e.cacheKey(missTexts[j]), encodeVector(vec)); err != nil {
				return err
			}
		}
		return nil
	})
	if writeErr != nil {
		for j, vec := range fresh {
			out[missIdx[j]] = vec
		}
		e.logger.WarnContext(ctx, "embedding cache write failed",
			slog.Any("error", writeErr))
	}

	e.logger.DebugContext(ctx, "embedding cache lookup",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)))
	return out, nil
}

// cacheKey derives the storage key for one text under the current model
// and vector length.
func (e *CachedEmbedder) cacheKey(text string) []byte {
	h := sha256.New()
	h.Write([]byte(e.inner.Model()))
	h.Write([]byte{0})
	var dims [8]byte
	binary.LittleEndian.PutUint64(dims[:], uint64(e.inner.Dimensions()))
	h.Write(dims[:])
	h.Write([]byte(text))
	return h.Sum(nil)
}

// encodeVector packs a vector as little-endian float32 bits.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a vector encoded by encodeVector.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
