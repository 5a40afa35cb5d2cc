package scan

import (
	"time"

	"github.com/halcyonlabs/dupscan/detect"
)

// FactorSource supplies risk factors for a candidate. Production
// deployments with coverage or dependency data plug in richer sources;
// the default derives what it can from the symbols themselves.
type FactorSource interface {
	Factors(c *detect.Candidate) detect.RiskFactors
}

// SymbolFactorSource derives risk factors from symbol metadata alone.
//
// Structural facts (module span, visibility, recency, files touched) come
// straight from the pair. Signals this source cannot observe default to
// their conservative reading: zero test coverage keeps untestable code out
// of auto-fix range.
type SymbolFactorSource struct {
	// DefaultCoverage substitutes for unknown test coverage. Zero is the
	// conservative choice.
	DefaultCoverage float64

	// now is injectable for tests.
	now func() time.Time
}

// Factors implements FactorSource.
func (s *SymbolFactorSource) Factors(c *detect.Candidate) detect.RiskFactors {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}

	filesAffected := 1
	if c.A.FilePath != c.B.FilePath {
		filesAffected = 2
	}

	return detect.RiskFactors{
		CrossModule:      c.A.Module != c.B.Module,
		PublicAPI:        c.A.Exported || c.B.Exported,
		TestCoverage:     s.DefaultCoverage,
		LastModifiedDays: daysSince(nowFn(), c.A.LastModifiedMilli, c.B.LastModifiedMilli),
		FilesAffected:    filesAffected,
	}
}

// daysSince returns days since the most recent of the given timestamps.
// Unknown timestamps (zero) read as old code.
func daysSince(now time.Time, milli ...int64) float64 {
	var latest int64
	for _, m := range milli {
		if m > latest {
			latest = m
		}
	}
	if latest == 0 {
		return 365
	}
	return now.Sub(time.UnixMilli(latest)).Hours() / 24
}
