// Package scan runs the full duplicate detection pipeline: extract symbols,
// embed them, index them, build candidates, score, decide, and route.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonlabs/dupscan/ast"
	"github.com/halcyonlabs/dupscan/config"
	"github.com/halcyonlabs/dupscan/detect"
	"github.com/halcyonlabs/dupscan/embed"
	"github.com/halcyonlabs/dupscan/processor"
	"github.com/halcyonlabs/dupscan/routing"
	"github.com/halcyonlabs/dupscan/vectorstore"
)

// MinSymbolLines filters out symbols too small to embed usefully.
const MinSymbolLines = 3

// Engine orchestrates one scan run.
type Engine struct {
	cfg      config.Config
	proc     *processor.Processor
	embedder embed.Embedder
	store    vectorstore.Store
	builder  *detect.Builder
	scorer   *detect.Scorer
	decider  *detect.Engine
	router   *routing.Router
	factors  FactorSource
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFactorSource replaces the default risk factor derivation.
func WithFactorSource(fs FactorSource) Option {
	return func(e *Engine) {
		if fs != nil {
			e.factors = fs
		}
	}
}

// NewEngine assembles an engine from already-built components.
func NewEngine(
	cfg config.Config,
	proc *processor.Processor,
	embedder embed.Embedder,
	store vectorstore.Store,
	router *routing.Router,
	opts ...Option,
) *Engine {
	e := &Engine{
		cfg:      cfg,
		proc:     proc,
		embedder: embedder,
		store:    store,
		builder:  detect.NewBuilder(cfg.Builder),
		scorer:   detect.NewScorer(cfg.Weights),
		decider:  detect.NewEngine(cfg.Builder.Skip),
		router:   router,
		factors:  &SymbolFactorSource{},
		logger:   slog.Default().With(slog.String("component", "scan_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan runs the pipeline over the given files and returns the report.
//
// Per-file and per-query failures are contained and surface in the report;
// only systemic failures (store insert, embedding backend) return an error.
func (e *Engine) Scan(ctx context.Context, files []processor.FileRef) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:          uuid.NewString(),
		StartedAtMilli: start.UnixMilli(),
	}

	ctx, span := otel.Tracer("dupscan/scan").Start(ctx, "engine.scan",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID),
			attribute.Int("files.count", len(files)),
		))
	defer span.End()

	procResult, err := e.proc.Process(ctx, files)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("process files: %w", err)
	}
	report.Processing = procResult.Metrics

	symbols := e.collectSymbols(procResult.Results)
	report.SymbolCount = len(symbols)
	if len(symbols) == 0 {
		report.Duration = time.Since(start)
		e.logger.InfoContext(ctx, "scan finished with no embeddable symbols",
			slog.String("run_id", report.RunID))
		return report, nil
	}

	if err := e.embedSymbols(ctx, symbols); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := e.store.BatchInsert(ctx, symbols); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("index symbols: %w", err)
	}

	buildResult, err := e.builder.Build(ctx, symbols, e.store)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build candidates: %w", err)
	}
	report.CandidatesSkipped = buildResult.Skipped
	report.QueriesFailed = buildResult.QueriesFailed
	report.DuplicatePercentage = buildResult.DuplicatePercentage

	for _, candidate := range buildResult.Candidates {
		e.scorer.Score(candidate, e.factors.Factors(candidate))
		decision := e.decider.Decide(candidate)
		report.addFinding(candidate, decision)

		if err := e.router.Route(ctx, candidate, decision); err != nil {
			report.RoutingFailures++
			e.logger.WarnContext(ctx, "routing failed for candidate",
				slog.String("candidate", candidate.String()),
				slog.Any("error", err))
		}
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("symbols.count", report.SymbolCount),
		attribute.Int("findings.count", len(report.Findings)),
	)
	e.logger.InfoContext(ctx, "scan finished",
		slog.String("run_id", report.RunID),
		slog.Int("symbols", report.SymbolCount),
		slog.Int("candidates", len(report.Findings)),
		slog.Int("auto_fix", report.AutoFixCount),
		slog.Int("human_review", report.HumanReviewCount),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// collectSymbols flattens parse results and filters out symbols too small
// or empty to embed.
func (e *Engine) collectSymbols(results []*ast.ParseResult) []*ast.Symbol {
	var symbols []*ast.Symbol
	for _, res := range results {
		for _, sym := range res.Symbols {
			if sym.LineCount() < MinSymbolLines || sym.Source == "" {
				continue
			}
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

// embedSymbols attaches embeddings to all symbols in place.
func (e *Engine) embedSymbols(ctx context.Context, symbols []*ast.Symbol) error {
	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = sym.Source
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed symbols: %w", err)
	}
	if len(vectors) != len(symbols) {
		return fmt.Errorf("embedder returned %d vectors for %d symbols", len(vectors), len(symbols))
	}
	for i, sym := range symbols {
		sym.Embedding = vectors[i]
	}
	return nil
}
