package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/dupscan/ast"
)

func TestEngine_TrivialSkip(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	c := makeCandidate(0.78, ast.SymbolKindFunction, ast.SymbolKindFunction, 4)
	scorer.Score(c, RiskFactors{TestCoverage: 90})

	decision := engine.Decide(c)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestEngine_SafeAutoFix(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	// Two private same-module functions, high coverage, few dependents.
	c := makeCandidate(0.92, ast.SymbolKindFunction, ast.SymbolKindFunction, 30)
	scorer.Score(c, RiskFactors{
		DependencyCount:  2,
		TestCoverage:     85,
		LastModifiedDays: 120,
		FilesAffected:    2,
	})

	assert.LessOrEqual(t, c.RiskScore, 25)
	assert.Equal(t, ConfidenceHigh, c.Confidence)

	decision := engine.Decide(c)
	assert.Equal(t, ActionAutoFix, decision.Action)
	assert.NotEmpty(t, decision.Justification)
}

func TestEngine_PublicAPIForcesReview(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	// Medium confidence cannot override the public API exclusion, no
	// matter how low the risk score is.
	c := makeCandidate(0.86, ast.SymbolKindFunction, ast.SymbolKindFunction, 30)
	scorer.Score(c, RiskFactors{
		PublicAPI:        true,
		TestCoverage:     60,
		LastModifiedDays: 120,
	})
	require.Equal(t, ConfidenceMedium, c.Confidence)

	decision := engine.Decide(c)
	assert.Equal(t, ActionHumanReview, decision.Action)
	assert.Contains(t, decision.Justification, "public API")
}

func TestEngine_VeryHighConfidenceOverridesExclusions(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	c := makeCandidate(0.96, ast.SymbolKindFunction, ast.SymbolKindFunction, 30)
	scorer.Score(c, RiskFactors{
		PublicAPI:        true,
		TestCoverage:     85,
		LastModifiedDays: 120,
		FilesAffected:    2,
	})
	require.Equal(t, ConfidenceVeryHigh, c.Confidence)
	require.LessOrEqual(t, c.RiskScore, 40)

	decision := engine.Decide(c)
	assert.Equal(t, ActionAutoFix, decision.Action)
}

func TestEngine_RiskCeilings(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	// High confidence but risk above the 25-point ceiling.
	c := makeCandidate(0.92, ast.SymbolKindFunction, ast.SymbolKindFunction, 30)
	scorer.Score(c, RiskFactors{
		DependencyCount:      6,
		TestCoverage:         85,
		CyclomaticComplexity: 11,
		LastModifiedDays:     2,
		FilesAffected:        2,
	})
	require.Equal(t, ConfidenceHigh, c.Confidence)
	require.Greater(t, c.RiskScore, 25)

	decision := engine.Decide(c)
	assert.Equal(t, ActionHumanReview, decision.Action)
	assert.Contains(t, decision.Justification, "ceiling")
}

func TestEngine_LowConfidenceNeverAutoFixes(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	c := makeCandidate(0.82, ast.SymbolKindFunction, ast.SymbolKindFunction, 40)
	scorer.Score(c, RiskFactors{TestCoverage: 99, LastModifiedDays: 365})
	require.Equal(t, ConfidenceLow, c.Confidence)
	require.Equal(t, 0, c.RiskScore)

	decision := engine.Decide(c)
	assert.Equal(t, ActionHumanReview, decision.Action)
}

func TestEngine_Scenarios(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())

	t.Run("private methods with few dependents", func(t *testing.T) {
		c := makeCandidate(0.86, ast.SymbolKindMethod, ast.SymbolKindMethod, 20)
		scorer.Score(c, RiskFactors{
			DependencyCount:  2,
			TestCoverage:     85,
			LastModifiedDays: 120,
		})
		require.Equal(t, ConfidenceHigh, c.Confidence)

		assert.Equal(t, ActionAutoFix, engine.Decide(c).Action)
	})

	t.Run("near-identical constants", func(t *testing.T) {
		c := makeCandidate(0.97, ast.SymbolKindVariable, ast.SymbolKindVariable, 12)
		scorer.Score(c, RiskFactors{
			TestCoverage:     85,
			LastModifiedDays: 120,
		})
		require.Equal(t, ConfidenceVeryHigh, c.Confidence)

		assert.Equal(t, ActionAutoFix, engine.Decide(c).Action)
	})

	t.Run("well-tested low-risk pair of mixed kinds", func(t *testing.T) {
		c := makeCandidate(0.89, ast.SymbolKindFunction, ast.SymbolKindMethod, 25)
		scorer.Score(c, RiskFactors{
			DependencyCount:  4,
			TestCoverage:     92,
			LastModifiedDays: 120,
		})
		require.Equal(t, ConfidenceHigh, c.Confidence)

		assert.Equal(t, ActionAutoFix, engine.Decide(c).Action)
	})

	t.Run("no scenario match goes to review", func(t *testing.T) {
		// Functions with modest similarity and coverage pass the ceiling
		// but match no allow-list scenario.
		c := makeCandidate(0.86, ast.SymbolKindFunction, ast.SymbolKindFunction, 25)
		scorer.Score(c, RiskFactors{
			DependencyCount:  4,
			TestCoverage:     85,
			LastModifiedDays: 120,
		})
		require.Equal(t, ConfidenceHigh, c.Confidence)
		require.LessOrEqual(t, c.RiskScore, 25)

		decision := engine.Decide(c)
		assert.Equal(t, ActionHumanReview, decision.Action)
		assert.Contains(t, decision.Justification, "no auto-fix scenario")
	})
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(DefaultSkipThresholds())
	scorer := NewScorer(DefaultWeights())
	factors := RiskFactors{
		CrossModule:      true,
		DependencyCount:  3,
		TestCoverage:     75,
		LastModifiedDays: 10,
		FilesAffected:    4,
	}

	var decisions []Decision
	for i := 0; i < 2; i++ {
		c := makeCandidate(0.91, ast.SymbolKindFunction, ast.SymbolKindFunction, 30)
		scorer.Score(c, factors)
		decisions = append(decisions, engine.Decide(c))
	}
	assert.Equal(t, decisions[0], decisions[1])
}
