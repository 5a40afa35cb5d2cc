package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashingDimensions is the vector length of the hashing embedder.
const DefaultHashingDimensions = 256

// HashingEmbedder produces deterministic vectors by feature-hashing token
// trigrams. It needs no network or model and always returns the same vector
// for the same text, which makes it suitable for offline scans and tests.
// Similar token streams land in overlapping buckets, so cosine similarity
// still correlates with textual similarity.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder. A non-positive dims value
// selects DefaultHashingDimensions.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dims}
}

// Dimensions returns the vector length.
func (e *HashingEmbedder) Dimensions() int { return e.dimensions }

// Model returns a stable identifier including the dimension count.
func (e *HashingEmbedder) Model() string {
	return fmt.Sprintf("hashing-trigram-%d", e.dimensions)
}

// Embed hashes token trigrams of each text into a normalized vector.
func (e *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimensions)
	tokens := tokenize(text)

	// Unigrams anchor the vocabulary, trigrams capture local structure.
	for _, tok := range tokens {
		vec[bucket(tok, e.dimensions)]++
	}
	for i := 0; i+2 < len(tokens); i++ {
		gram := tokens[i] + "\x00" + tokens[i+1] + "\x00" + tokens[i+2]
		vec[bucket(gram, e.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// bucket maps a feature string to a vector index.
func bucket(s string, dims int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// tokenize splits source text into lowercase identifier-ish tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
