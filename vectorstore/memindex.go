package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/halcyonlabs/dupscan/ast"
)

// MemoryIndex is a brute-force in-memory vector index.
//
// It exists for offline scans and tests where no Weaviate instance is
// available. Query cost is linear in the number of stored symbols, which is
// fine for the codebase sizes an offline scan handles.
//
// Thread Safety: safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]float32
	closed  bool
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	initMetrics()
	return &MemoryIndex{entries: make(map[string][]float32)}
}

// BatchInsert stores the symbols' embeddings keyed by symbol ID. Inserting
// the same ID again replaces its vector.
func (m *MemoryIndex) BatchInsert(ctx context.Context, symbols []*ast.Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for _, sym := range symbols {
		if len(sym.Embedding) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingEmbedding, sym.ID)
		}
		vec := make([]float32, len(sym.Embedding))
		copy(vec, sym.Embedding)
		m.entries[sym.ID] = vec
	}
	recordInserted(ctx, len(symbols))
	return nil
}

// FindSimilar scans every stored vector and returns the TopK best matches
// at or above MinSimilarity, best first. Ties break by symbol ID for
// deterministic output.
func (m *MemoryIndex) FindSimilar(ctx context.Context, q Query) ([]Match, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty probe embedding", ErrQueryFailed)
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	matches := make([]Match, 0)
	for id, vec := range m.entries {
		sim := cosineSimilarity(q.Embedding, vec)
		if sim >= q.MinSimilarity {
			matches = append(matches, Match{SymbolID: id, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].SymbolID < matches[j].SymbolID
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	recordQuery(ctx, true)
	return matches, nil
}

// Len returns the number of stored symbols.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close marks the index closed; further operations fail.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// cosineSimilarity computes cosine similarity between two vectors. Vectors
// of unequal length or zero norm score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
