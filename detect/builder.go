package detect

import (
	"context"
	"log/slog"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

// Builder defaults and skip thresholds.
const (
	DefaultTopK = 10

	// MinLineOverlap discards pairs too small to be worth remediating.
	MinLineOverlap = 5

	// SmallPairOverlap is the overlap floor for below-semantic pairs.
	SmallPairOverlap = 20

	// VariableOverlap is the overlap floor when both symbols are variables.
	VariableOverlap = 10
)

// SkipThresholds configures the pre-scoring discard rules.
type SkipThresholds struct {
	MinLineOverlap   int `yaml:"min_line_overlap" validate:"gte=0"`
	SmallPairOverlap int `yaml:"small_pair_overlap" validate:"gte=0"`
	VariableOverlap  int `yaml:"variable_overlap" validate:"gte=0"`
}

// DefaultSkipThresholds returns the default skip rules.
func DefaultSkipThresholds() SkipThresholds {
	return SkipThresholds{
		MinLineOverlap:   MinLineOverlap,
		SmallPairOverlap: SmallPairOverlap,
		VariableOverlap:  VariableOverlap,
	}
}

// BuilderConfig holds candidate building settings.
type BuilderConfig struct {
	// TopK is how many neighbors each symbol is queried for.
	TopK int `yaml:"top_k" validate:"gte=0"`

	// MinSimilarity is the query floor; matches below it never come back.
	MinSimilarity float64 `yaml:"min_similarity" validate:"gte=0,lte=1"`

	// Skip holds the pre-scoring discard thresholds.
	Skip SkipThresholds `yaml:"skip"`
}

// DefaultBuilderConfig returns the default builder configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		TopK:          DefaultTopK,
		MinSimilarity: SemanticThreshold,
		Skip:          DefaultSkipThresholds(),
	}
}

// applyDefaults fills zero values with defaults.
func (c *BuilderConfig) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = SemanticThreshold
	}
	if c.Skip.MinLineOverlap <= 0 {
		c.Skip.MinLineOverlap = MinLineOverlap
	}
	if c.Skip.SmallPairOverlap <= 0 {
		c.Skip.SmallPairOverlap = SmallPairOverlap
	}
	if c.Skip.VariableOverlap <= 0 {
		c.Skip.VariableOverlap = VariableOverlap
	}
}

// BuildResult aggregates one candidate building pass.
type BuildResult struct {
	// Candidates are the surviving classified pairs.
	Candidates []*Candidate `json:"candidates"`

	// Skipped counts pairs discarded by tier or skip rules.
	Skipped int `json:"skipped"`

	// QueriesFailed counts symbols whose similarity lookup failed after
	// the store's retries. Failed queries are not "no duplicates".
	QueriesFailed int `json:"queries_failed"`

	// DuplicatePercentage is sum(line_overlap) over all candidates divided
	// by the total analyzable lines, as a percentage. Reporting only.
	DuplicatePercentage float64 `json:"duplicate_percentage"`
}

// Builder converts similarity matches into deduplicated candidates.
type Builder struct {
	cfg    BuilderConfig
	skip   skipRule
	logger *slog.Logger
}

// NewBuilder creates a Builder with the given configuration.
func NewBuilder(cfg BuilderConfig) *Builder {
	cfg.applyDefaults()
	return &Builder{
		cfg:    cfg,
		skip:   skipRule{thresholds: cfg.Skip},
		logger: slog.Default().With(slog.String("component", "candidate_builder")),
	}
}

// Build queries the store for each symbol's neighbors and assembles
// deduplicated, classified candidates.
//
// Description:
//
//	For every symbol with an embedding, the store is asked for TopK
//	neighbors at or above MinSimilarity. Self matches and already-seen
//	unordered pairs are dropped, then the skip rules run before any
//	scoring work. Pair dedupe uses a canonical sorted key, so the result
//	is independent of symbol order.
//
// Failure semantics: a failed query counts in QueriesFailed and the scan
// moves on; it never masquerades as an empty result.
func (b *Builder) Build(ctx context.Context, symbols []*ast.Symbol, store vectorstore.Store) (*BuildResult, error) {
	result := &BuildResult{Candidates: make([]*Candidate, 0)}

	byID := make(map[string]*ast.Symbol, len(symbols))
	totalLines := 0
	for _, sym := range symbols {
		byID[sym.ID] = sym
		totalLines += sym.LineCount()
	}

	seen := make(map[string]struct{})
	overlapLines := 0

	for _, sym := range symbols {
		if len(sym.Embedding) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		matches, err := store.FindSimilar(ctx, vectorstore.Query{
			Embedding:     sym.Embedding,
			TopK:          b.cfg.TopK,
			MinSimilarity: b.cfg.MinSimilarity,
		})
		if err != nil {
			result.QueriesFailed++
			b.logger.WarnContext(ctx, "similarity query failed for symbol",
				slog.String("symbol", sym.ID),
				slog.Any("error", err))
			continue
		}

		for _, match := range matches {
			if match.SymbolID == sym.ID {
				continue
			}
			other, ok := byID[match.SymbolID]
			if !ok {
				// Stale index entry from a previous run.
				continue
			}
			key := PairKey(sym.ID, other.ID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			candidate := &Candidate{
				A:           sym,
				B:           other,
				Similarity:  match.Similarity,
				Tier:        ClassifyTier(match.Similarity),
				LineOverlap: minInt(sym.LineCount(), other.LineCount()),
			}
			if b.skip.shouldSkip(candidate) {
				result.Skipped++
				continue
			}

			result.Candidates = append(result.Candidates, candidate)
			overlapLines += candidate.LineOverlap
		}
	}

	if totalLines > 0 {
		result.DuplicatePercentage = float64(overlapLines) / float64(totalLines) * 100
	}

	b.logger.InfoContext(ctx, "candidate building finished",
		slog.Int("candidates", len(result.Candidates)),
		slog.Int("skipped", result.Skipped),
		slog.Int("queries_failed", result.QueriesFailed),
		slog.Float64("duplicate_percentage", result.DuplicatePercentage))
	return result, nil
}

// skipRule applies the pre-scoring discard thresholds.
type skipRule struct {
	thresholds SkipThresholds
}

func (r skipRule) shouldSkip(c *Candidate) bool {
	return ShouldSkip(c, r.thresholds)
}

// ShouldSkip reports whether a candidate is discarded before scoring.
func ShouldSkip(c *Candidate, t SkipThresholds) bool {
	if c.Tier == TierNone {
		return true
	}
	if c.LineOverlap < t.MinLineOverlap {
		return true
	}
	if c.Similarity < SemanticThreshold && c.LineOverlap < t.SmallPairOverlap {
		return true
	}
	if c.bothKind(ast.SymbolKindVariable) && c.LineOverlap < t.VariableOverlap {
		return true
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
