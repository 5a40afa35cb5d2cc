// Package routing packages decisions into outbound payloads.
//
// An auto-fix decision becomes an OrchestrationPlan handed to the external
// build-orchestration collaborator; a human-review decision becomes a
// ReviewPackage handed to the external issue tracker. This package defines
// only the payloads and the handoff interfaces; the collaborators'
// internals live elsewhere.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/detect"
)

// Approach is the recommended remediation strategy.
type Approach int

const (
	ApproachExtractToSharedUtility Approach = iota
	ApproachCreateCommonModule
	ApproachParameterizeVariation
	ApproachMergeClasses
)

var approachNames = map[Approach]string{
	ApproachExtractToSharedUtility: "extract_to_shared_utility",
	ApproachCreateCommonModule:     "create_common_module",
	ApproachParameterizeVariation:  "parameterize_variation",
	ApproachMergeClasses:           "merge_classes",
}

// String returns the approach name.
func (a Approach) String() string {
	if name, ok := approachNames[a]; ok {
		return name
	}
	return "extract_to_shared_utility"
}

// MarshalJSON serializes the approach as a string.
func (a Approach) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// OrchestrationPlan is the auto-fix payload.
type OrchestrationPlan struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	AcceptanceCriteria  []string `json:"acceptance_criteria"`
	RecommendedApproach Approach `json:"recommended_approach"`
	QualityGates        []string `json:"quality_gates"`
}

// ReviewPackage is the human-review payload.
type ReviewPackage struct {
	Title           string   `json:"title"`
	RiskAssessment  string   `json:"risk_assessment"`
	Concerns        []string `json:"concerns"`
	Recommendations []string `json:"recommendations"`
	Priority        string   `json:"priority"`
	Labels          []string `json:"labels"`
}

// OrchestrationSink receives auto-fix plans.
type OrchestrationSink interface {
	SubmitPlan(ctx context.Context, plan *OrchestrationPlan) error
}

// ReviewSink receives review packages.
type ReviewSink interface {
	SubmitReview(ctx context.Context, pkg *ReviewPackage) error
}

// Router converts decisions into payloads and hands them off.
type Router struct {
	orchestration OrchestrationSink
	review        ReviewSink
	logger        *slog.Logger
}

// NewRouter creates a Router with the given sinks. A nil sink drops that
// payload kind after logging.
func NewRouter(orchestration OrchestrationSink, review ReviewSink) *Router {
	return &Router{
		orchestration: orchestration,
		review:        review,
		logger:        slog.Default().With(slog.String("component", "router")),
	}
}

// Route dispatches one decided candidate. Skip decisions route nowhere.
func (r *Router) Route(ctx context.Context, c *detect.Candidate, d detect.Decision) error {
	switch d.Action {
	case detect.ActionSkip:
		return nil
	case detect.ActionAutoFix:
		plan := BuildPlan(c, d)
		if r.orchestration == nil {
			r.logger.WarnContext(ctx, "no orchestration sink configured, dropping plan",
				slog.String("title", plan.Title))
			return nil
		}
		if err := r.orchestration.SubmitPlan(ctx, plan); err != nil {
			return fmt.Errorf("submit orchestration plan: %w", err)
		}
		return nil
	case detect.ActionHumanReview:
		pkg := BuildReview(c, d)
		if r.review == nil {
			r.logger.WarnContext(ctx, "no review sink configured, dropping package",
				slog.String("title", pkg.Title))
			return nil
		}
		if err := r.review.SubmitReview(ctx, pkg); err != nil {
			return fmt.Errorf("submit review package: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %d", d.Action)
	}
}

// BuildPlan constructs the orchestration payload for an auto-fix decision.
func BuildPlan(c *detect.Candidate, d detect.Decision) *OrchestrationPlan {
	return &OrchestrationPlan{
		Title: fmt.Sprintf("Deduplicate %s and %s", c.A.Name, c.B.Name),
		Description: fmt.Sprintf(
			"%s duplicate between %s:%d and %s:%d (similarity %.2f, %d overlapping lines). %s.",
			c.Tier, c.A.FilePath, c.A.StartLine, c.B.FilePath, c.B.StartLine,
			c.Similarity, c.LineOverlap, d.Justification),
		AcceptanceCriteria: []string{
			"single remaining implementation, all call sites updated",
			"existing tests pass unchanged",
			"no public API signatures modified",
		},
		RecommendedApproach: RecommendApproach(c),
		QualityGates: []string{
			"build",
			"unit tests",
			"duplicate scan shows the pair resolved",
		},
	}
}

// RecommendApproach picks the remediation strategy from the candidate's
// shape: class pairs merge, structural variants get parameterized, wide
// duplicates get a common module, the rest extract a shared helper.
func RecommendApproach(c *detect.Candidate) Approach {
	switch {
	case c.A.Kind == ast.SymbolKindClass && c.B.Kind == ast.SymbolKindClass:
		return ApproachMergeClasses
	case c.Tier == detect.TierStructural:
		return ApproachParameterizeVariation
	case c.Factors.FilesAffected > 2:
		return ApproachCreateCommonModule
	default:
		return ApproachExtractToSharedUtility
	}
}

// BuildReview constructs the review payload for a human-review decision.
func BuildReview(c *detect.Candidate, d detect.Decision) *ReviewPackage {
	f := c.Factors

	concerns := make([]string, 0, 4)
	if f.PublicAPI {
		concerns = append(concerns, "touches public API surface")
	}
	if f.CrossModule {
		concerns = append(concerns, "spans multiple modules")
	}
	if f.TestCoverage < 50 {
		concerns = append(concerns, fmt.Sprintf("low test coverage (%.0f%%)", f.TestCoverage))
	}
	if f.CyclomaticComplexity > 10 {
		concerns = append(concerns, fmt.Sprintf("high cyclomatic complexity (%d)", f.CyclomaticComplexity))
	}
	if f.LastModifiedDays < 7 {
		concerns = append(concerns, "recently modified code")
	}

	recommendations := []string{
		fmt.Sprintf("consider %s", RecommendApproach(c)),
	}
	if f.TestCoverage < 80 {
		recommendations = append(recommendations, "add tests before consolidating")
	}

	return &ReviewPackage{
		Title: fmt.Sprintf("Duplicate code: %s and %s", c.A.Name, c.B.Name),
		RiskAssessment: fmt.Sprintf(
			"risk score %d/100, %s confidence. %s",
			d.RiskScore, d.Confidence, d.Justification),
		Concerns:        concerns,
		Recommendations: recommendations,
		Priority:        reviewPriority(c),
		Labels: []string{
			"duplicate-code",
			"tier:" + c.Tier.String(),
			"confidence:" + c.Confidence.String(),
		},
	}
}

// reviewPriority grades urgency from risk and exposure.
func reviewPriority(c *detect.Candidate) string {
	switch {
	case c.RiskScore >= 50 || c.Factors.PublicAPI:
		return "high"
	case c.RiskScore >= 25:
		return "medium"
	default:
		return "low"
	}
}
