package detect

import "math"

// Risk weights. CrossModule and PublicAPI represent irreducible structural
// risk and are never suppressed by trigger conditions.
const (
	weightCrossModule = 3.0
	weightPublicAPI   = 4.0

	weightDependencyHigh = 2.5
	weightDependencyLow  = 1.0
	weightCoverageLow    = 2.0
	weightCoverageMid    = 1.0
	weightComplexityHigh = 1.5
	weightComplexityMid  = 0.75
	weightRecencyHot     = 1.5
	weightRecencyWarm    = 0.75
	weightScopeWide      = 2.0
	weightScopeMid       = 1.0
)

// Weights holds the configurable risk weights. The zero value is invalid;
// use DefaultWeights.
type Weights struct {
	CrossModule    float64 `yaml:"cross_module" validate:"gte=0"`
	PublicAPI      float64 `yaml:"public_api" validate:"gte=0"`
	DependencyHigh float64 `yaml:"dependency_high" validate:"gte=0"`
	DependencyLow  float64 `yaml:"dependency_low" validate:"gte=0"`
	CoverageLow    float64 `yaml:"coverage_low" validate:"gte=0"`
	CoverageMid    float64 `yaml:"coverage_mid" validate:"gte=0"`
	ComplexityHigh float64 `yaml:"complexity_high" validate:"gte=0"`
	ComplexityMid  float64 `yaml:"complexity_mid" validate:"gte=0"`
	RecencyHot     float64 `yaml:"recency_hot" validate:"gte=0"`
	RecencyWarm    float64 `yaml:"recency_warm" validate:"gte=0"`
	ScopeWide      float64 `yaml:"scope_wide" validate:"gte=0"`
	ScopeMid       float64 `yaml:"scope_mid" validate:"gte=0"`
}

// DefaultWeights returns the standard risk weights.
func DefaultWeights() Weights {
	return Weights{
		CrossModule:    weightCrossModule,
		PublicAPI:      weightPublicAPI,
		DependencyHigh: weightDependencyHigh,
		DependencyLow:  weightDependencyLow,
		CoverageLow:    weightCoverageLow,
		CoverageMid:    weightCoverageMid,
		ComplexityHigh: weightComplexityHigh,
		ComplexityMid:  weightComplexityMid,
		RecencyHot:     weightRecencyHot,
		RecencyWarm:    weightRecencyWarm,
		ScopeWide:      weightScopeWide,
		ScopeMid:       weightScopeMid,
	}
}

// maxRaw returns the highest raw score these weights can produce.
func (w Weights) maxRaw() float64 {
	return w.CrossModule + w.PublicAPI + w.DependencyHigh +
		w.CoverageLow + w.ComplexityHigh + w.RecencyHot + w.ScopeWide
}

// Scorer assigns risk scores and confidence tiers to candidates.
//
// Scoring is a pure function of the candidate and its factors; two calls
// with the same inputs always produce the same outputs.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer. Zero weights fall back to the defaults.
func NewScorer(weights Weights) *Scorer {
	if weights.maxRaw() == 0 {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Score computes the candidate's risk score and confidence tier and
// records the factors on the candidate. It mutates the candidate exactly
// once; repeat calls just recompute the same values.
func (s *Scorer) Score(c *Candidate, factors RiskFactors) {
	c.Factors = factors
	c.RiskScore = s.riskScore(factors)
	c.Confidence = classifyConfidence(c.Similarity, factors.TestCoverage)
	c.scored = true
}

// riskScore evaluates the weighted factor sum normalized to 0-100.
//
// Each conditional weight contributes only when its trigger holds; the two
// boolean factors always contribute their full weight when set. The raw
// sum is normalized against the maximum possible raw score, rounded, and
// clamped.
func (s *Scorer) riskScore(f RiskFactors) int {
	w := s.weights
	var raw float64

	if f.CrossModule {
		raw += w.CrossModule
	}
	if f.PublicAPI {
		raw += w.PublicAPI
	}

	switch {
	case f.DependencyCount > 5:
		raw += w.DependencyHigh
	case f.DependencyCount > 2:
		raw += w.DependencyLow
	}

	switch {
	case f.TestCoverage < 50:
		raw += w.CoverageLow
	case f.TestCoverage < 80:
		raw += w.CoverageMid
	}

	switch {
	case f.CyclomaticComplexity > 10:
		raw += w.ComplexityHigh
	case f.CyclomaticComplexity > 5:
		raw += w.ComplexityMid
	}

	switch {
	case f.LastModifiedDays < 7:
		raw += w.RecencyHot
	case f.LastModifiedDays < 30:
		raw += w.RecencyWarm
	}

	switch {
	case f.FilesAffected > 10:
		raw += w.ScopeWide
	case f.FilesAffected > 5:
		raw += w.ScopeMid
	}

	score := int(math.Round(raw / s.weights.maxRaw() * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// classifyConfidence derives the confidence tier from similarity and test
// coverage.
func classifyConfidence(similarity, coverage float64) Confidence {
	switch {
	case similarity >= 0.95 && coverage >= 80:
		return ConfidenceVeryHigh
	case similarity >= 0.95 && coverage >= 50:
		return ConfidenceHigh
	case similarity >= 0.85 && coverage >= 80:
		return ConfidenceHigh
	case similarity >= 0.85:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
