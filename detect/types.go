// Package detect turns similarity matches into classified duplicate
// candidates, scores their remediation risk, and decides what happens to
// each one.
//
// The pipeline inside this package is Builder -> Score -> Decide. Scoring
// and deciding are pure functions over candidate data so that a given scan
// always produces the same decisions.
package detect

import (
	"encoding/json"
	"fmt"

	"github.com/halcyonlabs/dupscan/ast"
)

// Similarity tier thresholds.
const (
	ExactThreshold      = 1.0
	StructuralThreshold = 0.85
	SemanticThreshold   = 0.8

	// exactEpsilon absorbs float noise when cosine similarity of identical
	// vectors lands a hair under 1.0.
	exactEpsilon = 1e-9
)

// MatchTier classifies how close a duplicate pair is.
type MatchTier int

const (
	// TierNone means the pair is below the semantic threshold and is
	// discarded.
	TierNone MatchTier = iota

	// TierSemantic covers similarity in [0.8, 0.85).
	TierSemantic

	// TierStructural covers similarity in [0.85, 1.0).
	TierStructural

	// TierExact covers similarity of 1.0.
	TierExact
)

var tierNames = map[MatchTier]string{
	TierNone:       "none",
	TierSemantic:   "semantic",
	TierStructural: "structural",
	TierExact:      "exact",
}

// String returns the tier name.
func (t MatchTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "none"
}

// MarshalJSON serializes the tier as a string.
func (t MatchTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// ClassifyTier maps a similarity score to its tier.
func ClassifyTier(similarity float64) MatchTier {
	switch {
	case similarity >= ExactThreshold-exactEpsilon:
		return TierExact
	case similarity >= StructuralThreshold:
		return TierStructural
	case similarity >= SemanticThreshold:
		return TierSemantic
	default:
		return TierNone
	}
}

// Confidence grades how trustworthy the similarity and coverage evidence is.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceVeryHigh
)

var confidenceNames = map[Confidence]string{
	ConfidenceLow:      "low",
	ConfidenceMedium:   "medium",
	ConfidenceHigh:     "high",
	ConfidenceVeryHigh: "very_high",
}

// String returns the confidence name.
func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return "low"
}

// MarshalJSON serializes the confidence as a string.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// RiskFactors carries the code-health signals feeding the risk score.
//
// Callers gather these from whatever analysis sources they have; zero
// values are safe and read as "no evidence of risk" for the optional
// factors, except TestCoverage where 0 means untested.
type RiskFactors struct {
	// CrossModule is true when the pair spans two modules.
	CrossModule bool `json:"cross_module"`

	// PublicAPI is true when either symbol is publicly visible.
	PublicAPI bool `json:"public_api"`

	// DependencyCount is how many other symbols depend on the pair.
	DependencyCount int `json:"dependency_count"`

	// TestCoverage is the percentage of the affected code under test, 0-100.
	TestCoverage float64 `json:"test_coverage"`

	// CyclomaticComplexity is the higher complexity of the two symbols.
	CyclomaticComplexity int `json:"cyclomatic_complexity"`

	// LastModifiedDays is days since either symbol last changed.
	LastModifiedDays float64 `json:"last_modified_days"`

	// FilesAffected is how many files a remediation would touch.
	FilesAffected int `json:"files_affected"`
}

// Candidate is one classified duplicate pair.
//
// Built by the Builder, scored exactly once by Score, then consumed by
// Decide. A and B are read-only references into the scan's symbol set.
type Candidate struct {
	A *ast.Symbol `json:"symbol_a"`
	B *ast.Symbol `json:"symbol_b"`

	// Similarity is the cosine similarity of the pair's embeddings.
	Similarity float64 `json:"similarity"`

	// Tier is derived from Similarity via the fixed thresholds.
	Tier MatchTier `json:"tier"`

	// LineOverlap is min(lines(A), lines(B)).
	LineOverlap int `json:"line_overlap"`

	// RiskScore is 0-100, assigned by Score.
	RiskScore int `json:"risk_score"`

	// Confidence is assigned by Score.
	Confidence Confidence `json:"confidence"`

	// Factors are the risk inputs recorded at scoring time, kept on the
	// candidate so deciding stays a pure function of candidate data.
	Factors RiskFactors `json:"factors"`

	scored bool
}

// PairKey returns the canonical unordered pair key for dedupe.
func PairKey(idA, idB string) string {
	if idB < idA {
		idA, idB = idB, idA
	}
	return idA + "|" + idB
}

// Key returns the candidate's canonical pair key.
func (c *Candidate) Key() string {
	return PairKey(c.A.ID, c.B.ID)
}

// Scored reports whether Score has run on this candidate.
func (c *Candidate) Scored() bool {
	return c.scored
}

// bothKind reports whether both symbols have the given kind.
func (c *Candidate) bothKind(kind ast.SymbolKind) bool {
	return c.A.Kind == kind && c.B.Kind == kind
}

// String renders a short human-readable form for logs.
func (c *Candidate) String() string {
	return fmt.Sprintf("%s:%s <-> %s:%s (%.3f %s)",
		c.A.FilePath, c.A.Name, c.B.FilePath, c.B.Name, c.Similarity, c.Tier)
}
