// Package vectorstore persists symbol embeddings and answers nearest
// neighbor queries over them.
//
// The primary implementation is backed by Weaviate. A brute-force in-memory
// index serves offline scans and tests. Both sit behind the Store interface,
// and CachedStore adds a TTL query cache on top of either.
package vectorstore

import (
	"context"

	"github.com/halcyonlabs/dupscan/ast"
)

// Match is one nearest neighbor result.
type Match struct {
	// SymbolID identifies the matched symbol.
	SymbolID string `json:"symbol_id"`

	// Similarity is cosine similarity in [0, 1], higher is closer.
	Similarity float64 `json:"similarity"`
}

// Query describes one similarity lookup.
type Query struct {
	// Embedding is the probe vector.
	Embedding []float32

	// TopK bounds the number of matches returned.
	TopK int

	// MinSimilarity filters out matches below this cosine similarity.
	MinSimilarity float64
}

// Store persists symbol vectors and serves similarity queries.
//
// A query that fails is reported as an error, never as an empty result:
// callers must be able to tell "no duplicates" apart from "store down".
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// BatchInsert stores the given symbols with their embeddings. Symbols
	// without an embedding are rejected.
	BatchInsert(ctx context.Context, symbols []*ast.Symbol) error

	// FindSimilar returns up to q.TopK matches with similarity of at least
	// q.MinSimilarity, ordered best first.
	FindSimilar(ctx context.Context, q Query) ([]Match, error)

	// Close releases underlying resources.
	Close() error
}
