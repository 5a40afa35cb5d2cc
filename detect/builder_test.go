package detect

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

// vectorAt returns a unit vector at the given angle from (1, 0), so two
// vectors built from angles a and b have cosine similarity cos(a-b).
func vectorAt(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func builderSymbol(id, module string, kind ast.SymbolKind, lines int, embedding []float32) *ast.Symbol {
	return &ast.Symbol{
		ID:        id,
		Name:      id,
		Kind:      kind,
		FilePath:  module + "/" + id + ".go",
		Language:  "go",
		Module:    module,
		StartLine: 1,
		EndLine:   lines,
		Embedding: embedding,
	}
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex()

	identical := vectorAt(0)
	structural := vectorAt(math.Acos(0.9)) // cosine 0.9 against identical
	unrelated := vectorAt(math.Pi / 2)

	symbols := []*ast.Symbol{
		builderSymbol("dup1", "pkg", ast.SymbolKindFunction, 30, identical),
		builderSymbol("dup2", "pkg", ast.SymbolKindFunction, 30, identical),
		builderSymbol("near", "pkg", ast.SymbolKindFunction, 30, structural),
		builderSymbol("other", "pkg", ast.SymbolKindFunction, 30, unrelated),
	}
	require.NoError(t, idx.BatchInsert(ctx, symbols))

	builder := NewBuilder(DefaultBuilderConfig())
	result, err := builder.Build(ctx, symbols, idx)
	require.NoError(t, err)

	assert.Zero(t, result.QueriesFailed)

	byKey := make(map[string]*Candidate)
	for _, c := range result.Candidates {
		byKey[c.Key()] = c
	}

	t.Run("exact pair found once despite two probe directions", func(t *testing.T) {
		c, ok := byKey[PairKey("dup1", "dup2")]
		require.True(t, ok)
		assert.Equal(t, TierExact, c.Tier)
		assert.InDelta(t, 1.0, c.Similarity, 1e-6)
		assert.Equal(t, 30, c.LineOverlap)
	})

	t.Run("structural neighbors classified by threshold", func(t *testing.T) {
		c, ok := byKey[PairKey("dup1", "near")]
		require.True(t, ok)
		assert.Equal(t, TierStructural, c.Tier)
	})

	t.Run("unrelated symbol pairs with nothing", func(t *testing.T) {
		for key := range byKey {
			assert.NotContains(t, key, "other")
		}
	})

	t.Run("duplicate percentage reflects overlap lines", func(t *testing.T) {
		assert.Greater(t, result.DuplicatePercentage, 0.0)
		assert.LessOrEqual(t, result.DuplicatePercentage, 100.0)
	})
}

func TestBuilder_SkipRules(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex()

	identical := vectorAt(0)
	symbols := []*ast.Symbol{
		builderSymbol("tiny1", "pkg", ast.SymbolKindFunction, 4, identical),
		builderSymbol("tiny2", "pkg", ast.SymbolKindFunction, 4, identical),
		builderSymbol("var1", "pkg", ast.SymbolKindVariable, 8, vectorAt(math.Pi/2)),
		builderSymbol("var2", "pkg", ast.SymbolKindVariable, 8, vectorAt(math.Pi/2)),
	}
	require.NoError(t, idx.BatchInsert(ctx, symbols))

	builder := NewBuilder(DefaultBuilderConfig())
	result, err := builder.Build(ctx, symbols, idx)
	require.NoError(t, err)

	// tiny pair: overlap 4 < 5. variable pair: overlap 8 < 10.
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 2, result.Skipped)
}

func TestShouldSkip(t *testing.T) {
	thresholds := DefaultSkipThresholds()
	tests := []struct {
		name      string
		candidate *Candidate
		want      bool
	}{
		{"below semantic threshold", makeCandidate(0.78, ast.SymbolKindFunction, ast.SymbolKindFunction, 40), true},
		{"tiny overlap", makeCandidate(0.95, ast.SymbolKindFunction, ast.SymbolKindFunction, 4), true},
		{"small variable pair", makeCandidate(0.96, ast.SymbolKindVariable, ast.SymbolKindVariable, 8), true},
		{"large variable pair", makeCandidate(0.96, ast.SymbolKindVariable, ast.SymbolKindVariable, 15), false},
		{"ordinary candidate", makeCandidate(0.9, ast.SymbolKindFunction, ast.SymbolKindFunction, 25), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldSkip(tc.candidate, thresholds))
		})
	}
}

// failingStore always errors on queries.
type failingStore struct{}

func (failingStore) BatchInsert(context.Context, []*ast.Symbol) error { return nil }

func (failingStore) FindSimilar(context.Context, vectorstore.Query) ([]vectorstore.Match, error) {
	return nil, fmt.Errorf("%w: index unreachable", vectorstore.ErrQueryFailed)
}

func (failingStore) Close() error { return nil }

func TestBuilder_FailedQueriesAreCounted(t *testing.T) {
	symbols := []*ast.Symbol{
		builderSymbol("a", "pkg", ast.SymbolKindFunction, 30, vectorAt(0)),
		builderSymbol("b", "pkg", ast.SymbolKindFunction, 30, vectorAt(0)),
	}

	builder := NewBuilder(DefaultBuilderConfig())
	result, err := builder.Build(context.Background(), symbols, failingStore{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.QueriesFailed, "failed queries are never silent")
	assert.Empty(t, result.Candidates)
}

func TestBuilder_SymbolsWithoutEmbeddingsAreIgnored(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex()

	embedded := builderSymbol("embedded", "pkg", ast.SymbolKindFunction, 30, vectorAt(0))
	require.NoError(t, idx.BatchInsert(ctx, []*ast.Symbol{embedded}))

	naked := builderSymbol("naked", "pkg", ast.SymbolKindFunction, 30, nil)

	builder := NewBuilder(DefaultBuilderConfig())
	result, err := builder.Build(ctx, []*ast.Symbol{embedded, naked}, idx)
	require.NoError(t, err)

	assert.Empty(t, result.Candidates)
	assert.Zero(t, result.QueriesFailed)
}
