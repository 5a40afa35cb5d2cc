package detect

import (
	"fmt"

	"github.com/halcyonlabs/dupscan/ast"
)

// Action is the terminal outcome for a candidate.
type Action int

const (
	// ActionSkip means the candidate is too small or weak to act on.
	ActionSkip Action = iota

	// ActionAutoFix means remediation may proceed without human sign-off.
	ActionAutoFix

	// ActionHumanReview means the candidate is escalated to a reviewer.
	ActionHumanReview
)

var actionNames = map[Action]string{
	ActionSkip:        "skip",
	ActionAutoFix:     "auto_fix",
	ActionHumanReview: "human_review",
}

// String returns the action name.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "skip"
}

// Decision is the engine's verdict on one candidate. Immutable and
// terminal for that candidate.
type Decision struct {
	Action        Action     `json:"action"`
	RiskScore     int        `json:"risk_score"`
	Confidence    Confidence `json:"confidence"`
	Justification string     `json:"justification"`
}

// Risk ceilings per confidence tier: the highest risk score that still
// permits an auto fix. Low confidence never auto-fixes.
var riskCeilings = map[Confidence]int{
	ConfidenceVeryHigh: 40,
	ConfidenceHigh:     25,
	ConfidenceMedium:   15,
}

// Engine decides what happens to scored candidates.
//
// Decide is a pure function over candidate data: no I/O, no clock, no
// randomness. Identical candidates always receive identical decisions.
type Engine struct {
	skip SkipThresholds
}

// NewEngine creates an Engine with the given skip thresholds. The zero
// value selects the defaults.
func NewEngine(skip SkipThresholds) *Engine {
	if skip == (SkipThresholds{}) {
		skip = DefaultSkipThresholds()
	}
	return &Engine{skip: skip}
}

// Decide maps a scored candidate to its terminal action.
//
// Precedence: skip rules, then hard exclusions, then the confidence risk
// ceiling, then the auto-fix scenario allow-list. A candidate must clear
// every stage to earn an auto fix; failing any stage after the skip check
// escalates it to human review.
func (e *Engine) Decide(c *Candidate) Decision {
	if ShouldSkip(c, e.skip) {
		return Decision{
			Action:        ActionSkip,
			RiskScore:     c.RiskScore,
			Confidence:    c.Confidence,
			Justification: fmt.Sprintf("below actionable thresholds (similarity %.3f, overlap %d lines)", c.Similarity, c.LineOverlap),
		}
	}

	if reason, excluded := e.hardExclusion(c); excluded {
		return Decision{
			Action:        ActionHumanReview,
			RiskScore:     c.RiskScore,
			Confidence:    c.Confidence,
			Justification: reason,
		}
	}

	ceiling, autoFixable := riskCeilings[c.Confidence]
	if !autoFixable {
		return Decision{
			Action:        ActionHumanReview,
			RiskScore:     c.RiskScore,
			Confidence:    c.Confidence,
			Justification: "low confidence evidence never auto-fixes",
		}
	}
	if c.RiskScore > ceiling {
		return Decision{
			Action:        ActionHumanReview,
			RiskScore:     c.RiskScore,
			Confidence:    c.Confidence,
			Justification: fmt.Sprintf("risk score %d exceeds %s confidence ceiling %d", c.RiskScore, c.Confidence, ceiling),
		}
	}

	if scenario, ok := matchScenario(c); ok {
		return Decision{
			Action:        ActionAutoFix,
			RiskScore:     c.RiskScore,
			Confidence:    c.Confidence,
			Justification: scenario,
		}
	}

	return Decision{
		Action:        ActionHumanReview,
		RiskScore:     c.RiskScore,
		Confidence:    c.Confidence,
		Justification: "no auto-fix scenario matched",
	}
}

// hardExclusion applies the never-auto-fix rules. Public API and
// cross-module candidates are excluded unless the evidence is very high
// confidence.
func (e *Engine) hardExclusion(c *Candidate) (string, bool) {
	if c.Confidence == ConfidenceVeryHigh {
		return "", false
	}
	if c.Factors.PublicAPI {
		return "public API surface requires human review", true
	}
	if c.Factors.CrossModule {
		return "cross-module duplication requires human review", true
	}
	return "", false
}

// matchScenario checks the auto-fix allow-list. Any one scenario
// qualifies.
func matchScenario(c *Candidate) (string, bool) {
	f := c.Factors

	if c.bothKind(ast.SymbolKindFunction) && !f.CrossModule &&
		c.Similarity >= 0.90 && f.FilesAffected <= 3 && f.TestCoverage >= 70 {
		return "same-module functions with strong similarity and coverage", true
	}

	if c.bothKind(ast.SymbolKindMethod) && !f.PublicAPI &&
		c.Similarity >= 0.85 && f.DependencyCount <= 3 {
		return "private methods with few dependents", true
	}

	if c.bothKind(ast.SymbolKindVariable) &&
		c.Similarity >= 0.95 && c.LineOverlap <= 50 && f.CyclomaticComplexity <= 3 {
		return "near-identical variables or constants", true
	}

	if f.TestCoverage >= 90 && c.Similarity >= 0.88 &&
		f.DependencyCount <= 5 && c.RiskScore <= 20 {
		return "well-tested low-risk duplicate", true
	}

	return "", false
}
