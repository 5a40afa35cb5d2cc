package vectorstore

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	queryCounter    metric.Int64Counter
	insertedCounter metric.Int64Counter
	cacheLookups    metric.Int64Counter
)

// initMetrics sets up package metrics exactly once.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("dupscan/vectorstore")

		var err error
		queryCounter, err = meter.Int64Counter(
			"dupscan.vectorstore.queries",
			metric.WithDescription("Similarity queries by outcome"),
		)
		if err != nil {
			slog.Warn("failed to create query counter", slog.Any("error", err))
		}

		insertedCounter, err = meter.Int64Counter(
			"dupscan.vectorstore.symbols_inserted",
			metric.WithDescription("Symbols inserted into the vector index"),
		)
		if err != nil {
			slog.Warn("failed to create insert counter", slog.Any("error", err))
		}

		cacheLookups, err = meter.Int64Counter(
			"dupscan.vectorstore.cache_lookups",
			metric.WithDescription("Query cache lookups by hit/miss"),
		)
		if err != nil {
			slog.Warn("failed to create cache lookup counter", slog.Any("error", err))
		}
	})
}

// recordQuery counts one similarity query.
func recordQuery(ctx context.Context, ok bool) {
	if queryCounter == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	queryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// recordInserted counts symbols written to the index.
func recordInserted(ctx context.Context, n int) {
	if insertedCounter == nil {
		return
	}
	insertedCounter.Add(ctx, int64(n))
}

// recordCacheLookup counts one query cache lookup.
func recordCacheLookup(ctx context.Context, hit bool) {
	if cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
