package memory

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	memorySamples metric.Int64Counter
	memoryPercent metric.Float64Histogram
)

// initMetrics sets up package metrics exactly once. Instrument creation
// failures are logged and leave the instruments nil; recording is skipped
// in that case.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("dupscan/memory")

		var err error
		memorySamples, err = meter.Int64Counter(
			"dupscan.memory.samples",
			metric.WithDescription("Number of memory pressure samples taken"),
		)
		if err != nil {
			slog.Warn("failed to create memory samples counter", slog.Any("error", err))
		}

		memoryPercent, err = meter.Float64Histogram(
			"dupscan.memory.percent_used",
			metric.WithDescription("Sampled system memory utilization percentage"),
			metric.WithUnit("%"),
		)
		if err != nil {
			slog.Warn("failed to create memory percent histogram", slog.Any("error", err))
		}
	})
}
