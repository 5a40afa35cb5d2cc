package processor

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	throttleCounter metric.Int64Counter
)

// initMetrics sets up package metrics exactly once.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("dupscan/processor")

		var err error
		throttleCounter, err = meter.Int64Counter(
			"dupscan.processor.throttle_events",
			metric.WithDescription("Number of memory throttle backoffs during processing"),
		)
		if err != nil {
			slog.Warn("failed to create throttle counter", slog.Any("error", err))
		}
	})
}

// recordThrottle counts one throttle backoff.
func recordThrottle(ctx context.Context) {
	if throttleCounter == nil {
		return
	}
	throttleCounter.Add(ctx, 1)
}
