// Package embed turns symbol source text into fixed-length vectors.
//
// Three implementations are provided: an OpenAI-backed embedder for real
// scans, a deterministic local hashing embedder for offline use and tests,
// and a Badger-backed caching decorator that avoids re-embedding unchanged
// symbols across runs.
package embed

import "context"

// Embedder produces embedding vectors for source text.
//
// Thread Safety: implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order. All vectors
	// have Dimensions() length.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this embedder produces.
	Dimensions() int

	// Model returns an identifier for the embedding model, used in cache
	// keys so vectors from different models never mix.
	Model() string
}
