package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/halcyonlabs/dupscan/detect"
	"github.com/halcyonlabs/dupscan/processor"
)

// Severity grades a finding for reporting.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// classifySeverity grades a finding by similarity.
func classifySeverity(similarity float64) Severity {
	switch {
	case similarity >= 0.95:
		return SeverityCritical
	case similarity >= 0.85:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Finding is one decided candidate in the report.
type Finding struct {
	SymbolA     string   `json:"symbol_a"`
	SymbolB     string   `json:"symbol_b"`
	FileA       string   `json:"file_a"`
	FileB       string   `json:"file_b"`
	Similarity  float64  `json:"similarity"`
	Tier        string   `json:"tier"`
	LineOverlap int      `json:"line_overlap"`
	RiskScore   int      `json:"risk_score"`
	Confidence  string   `json:"confidence"`
	Severity    Severity `json:"severity"`
	Action      string   `json:"action"`
	Reason      string   `json:"reason"`
}

// Report summarizes one scan run. Error counts are kept apart from
// findings so an error-suppressed absence of duplicates never reads as a
// clean codebase.
type Report struct {
	RunID          string        `json:"run_id"`
	StartedAtMilli int64         `json:"started_at_milli"`
	Duration       time.Duration `json:"duration"`

	Processing processor.Metrics `json:"processing"`

	SymbolCount         int     `json:"symbol_count"`
	CandidatesSkipped   int     `json:"candidates_skipped"`
	QueriesFailed       int     `json:"queries_failed"`
	RoutingFailures     int     `json:"routing_failures"`
	DuplicatePercentage float64 `json:"duplicate_percentage"`

	Findings []Finding `json:"findings"`

	AutoFixCount     int `json:"auto_fix_count"`
	HumanReviewCount int `json:"human_review_count"`
	SkipCount        int `json:"skip_count"`

	SeverityCounts map[Severity]int `json:"severity_counts,omitempty"`
}

// addFinding records one decided candidate.
func (r *Report) addFinding(c *detect.Candidate, d detect.Decision) {
	severity := classifySeverity(c.Similarity)

	r.Findings = append(r.Findings, Finding{
		SymbolA:     c.A.Name,
		SymbolB:     c.B.Name,
		FileA:       c.A.FilePath,
		FileB:       c.B.FilePath,
		Similarity:  c.Similarity,
		Tier:        c.Tier.String(),
		LineOverlap: c.LineOverlap,
		RiskScore:   c.RiskScore,
		Confidence:  c.Confidence.String(),
		Severity:    severity,
		Action:      d.Action.String(),
		Reason:      d.Justification,
	})

	switch d.Action {
	case detect.ActionAutoFix:
		r.AutoFixCount++
	case detect.ActionHumanReview:
		r.HumanReviewCount++
	default:
		r.SkipCount++
	}

	if r.SeverityCounts == nil {
		r.SeverityCounts = make(map[Severity]int)
	}
	r.SeverityCounts[severity]++
}

// HasFailures reports whether any part of the run failed.
func (r *Report) HasFailures() bool {
	return r.Processing.FilesFailed > 0 || r.QueriesFailed > 0 ||
		r.RoutingFailures > 0 || r.Processing.Partial
}

// Summary renders a human-readable run summary, keeping failures clearly
// separated from findings.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "scan %s: %d files processed, %d symbols, %.1f%% duplicated lines\n",
		r.RunID, r.Processing.FilesProcessed, r.SymbolCount, r.DuplicatePercentage)
	fmt.Fprintf(&b, "findings: %d total (%d auto-fix, %d human review, %d skipped, %d filtered pre-score)\n",
		len(r.Findings), r.AutoFixCount, r.HumanReviewCount, r.SkipCount, r.CandidatesSkipped)

	if r.HasFailures() {
		fmt.Fprintf(&b, "failures: %d files failed extraction, %d similarity queries failed, %d routing failures",
			r.Processing.FilesFailed, r.QueriesFailed, r.RoutingFailures)
		if r.Processing.Partial {
			b.WriteString(", run was cut short by deadline")
		}
		b.WriteString(" -- absence of findings is not conclusive\n")
	} else {
		b.WriteString("no failures: results are complete\n")
	}

	return b.String()
}
