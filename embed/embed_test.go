package embed

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps a HashingEmbedder and counts how many texts reach it.
type countingEmbedder struct {
	inner Embedder
	calls atomic.Int64
	texts atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	return c.inner.Embed(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) Model() string   { return c.inner.Model() }

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(0)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"func add(a, b int) int { return a + b }"})
	require.NoError(t, err)
	second, err := e.Embed(ctx, []string{"func add(a, b int) int { return a + b }"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first[0], DefaultHashingDimensions)
}

func TestHashingEmbedder_SimilarityOrdering(t *testing.T) {
	e := NewHashingEmbedder(0)
	ctx := context.Background()

	vecs, err := e.Embed(ctx, []string{
		"func sum(values []int) int { total := 0; for _, v := range values { total += v }; return total }",
		"func sum(nums []int) int { total := 0; for _, n := range nums { total += n }; return total }",
		"type Server struct { addr string; handler http.Handler }",
	})
	require.NoError(t, err)

	near := cosine(vecs[0], vecs[1])
	far := cosine(vecs[0], vecs[2])
	assert.Greater(t, near, far, "near-duplicates should score above unrelated code")
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	e := NewHashingEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"some text here"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-5)
}

func TestCachedEmbedder(t *testing.T) {
	counting := &countingEmbedder{inner: NewHashingEmbedder(32)}
	cached, err := NewCachedEmbedder(counting, "")
	require.NoError(t, err)
	defer cached.Close()

	ctx := context.Background()
	texts := []string{"alpha body", "beta body", "gamma body"}

	t.Run("cold cache delegates everything", func(t *testing.T) {
		vecs, err := cached.Embed(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, int64(3), counting.texts.Load())
	})

	t.Run("warm cache delegates nothing", func(t *testing.T) {
		vecs, err := cached.Embed(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, int64(3), counting.texts.Load(), "no new texts embedded")
	})

	t.Run("partial hit delegates only misses", func(t *testing.T) {
		vecs, err := cached.Embed(ctx, []string{"alpha body", "delta body"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Equal(t, int64(4), counting.texts.Load(), "only delta was a miss")
	})

	t.Run("cached vectors match direct embedding", func(t *testing.T) {
		direct, err := counting.inner.Embed(ctx, []string{"alpha body"})
		require.NoError(t, err)
		viaCache, err := cached.Embed(ctx, []string{"alpha body"})
		require.NoError(t, err)
		assert.Equal(t, direct[0], viaCache[0])
	})
}

func TestCachedEmbedder_DimensionChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	texts := []string{"alpha body", "beta body"}

	wide, err := NewCachedEmbedder(NewHashingEmbedder(64), dir)
	require.NoError(t, err)
	vecs, err := wide.Embed(ctx, texts)
	require.NoError(t, err)
	for _, v := range vecs {
		require.Len(t, v, 64)
	}
	require.NoError(t, wide.Close())

	// Same cache directory, different vector length: every warm entry
	// must miss so mixed-length vectors never come back.
	narrow, err := NewCachedEmbedder(NewHashingEmbedder(32), dir)
	require.NoError(t, err)
	defer narrow.Close()

	vecs, err = narrow.Embed(ctx, texts)
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, 32)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

// cosine computes cosine similarity for test assertions.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
