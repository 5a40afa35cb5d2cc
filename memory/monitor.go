// Package memory provides adaptive memory pressure monitoring for the scan
// pipeline.
//
// The Monitor classifies system memory usage into pressure levels and derives
// a recommended batch size from them. Consumers poll the monitor between
// batches and shrink their workload as pressure rises, so a scan degrades
// gracefully instead of getting OOM-killed halfway through a large codebase.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Level classifies memory pressure.
type Level int

const (
	// LevelNormal means usage is below the warning threshold.
	LevelNormal Level = iota

	// LevelWarning means usage crossed the warning threshold. Batch sizes
	// begin shrinking.
	LevelWarning

	// LevelCritical means usage crossed the critical threshold.
	LevelCritical

	// LevelThrottling means usage crossed the throttling threshold. Workers
	// must back off before submitting more work.
	LevelThrottling

	// LevelEmergency means usage crossed the emergency threshold. Processing
	// drops to single-item batches.
	LevelEmergency
)

var levelNames = map[Level]string{
	LevelNormal:     "normal",
	LevelWarning:    "warning",
	LevelCritical:   "critical",
	LevelThrottling: "throttling",
	LevelEmergency:  "emergency",
}

// String returns the level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Status is a point-in-time snapshot of memory pressure.
type Status struct {
	// PercentUsed is system memory utilization, 0-100.
	PercentUsed float64 `json:"percent_used"`

	// Level is the pressure classification for PercentUsed.
	Level Level `json:"level"`

	// RecommendedBatchSize is the batch size derived from Level for a
	// consumer whose configured base batch size was passed to the monitor.
	RecommendedBatchSize int `json:"recommended_batch_size"`

	// SampledAtMilli is when the sample was taken, Unix milliseconds.
	SampledAtMilli int64 `json:"sampled_at_milli"`
}

// Sampler reports current memory utilization as a percentage in [0, 100].
type Sampler func() (float64, error)

// Config holds the monitor's pressure thresholds, as percentages.
type Config struct {
	WarningPercent    float64 `yaml:"warning_percent" validate:"gt=0,lt=100"`
	CriticalPercent   float64 `yaml:"critical_percent" validate:"gt=0,lt=100"`
	ThrottlingPercent float64 `yaml:"throttling_percent" validate:"gt=0,lt=100"`
	EmergencyPercent  float64 `yaml:"emergency_percent" validate:"gt=0,lt=100"`
}

// DefaultConfig returns the default threshold configuration.
func DefaultConfig() Config {
	return Config{
		WarningPercent:    70,
		CriticalPercent:   80,
		ThrottlingPercent: 85,
		EmergencyPercent:  90,
	}
}

// Validate checks that thresholds are strictly increasing.
func (c Config) Validate() error {
	if c.WarningPercent <= 0 || c.EmergencyPercent >= 100 {
		return fmt.Errorf("%w: thresholds must lie in (0, 100)", ErrInvalidThresholds)
	}
	if !(c.WarningPercent < c.CriticalPercent &&
		c.CriticalPercent < c.ThrottlingPercent &&
		c.ThrottlingPercent < c.EmergencyPercent) {
		return fmt.Errorf("%w: thresholds must be strictly increasing", ErrInvalidThresholds)
	}
	return nil
}

// Monitor tracks memory pressure and recommends batch sizes.
//
// Thread Safety: all methods are safe for concurrent use.
type Monitor struct {
	cfg     Config
	sampler Sampler
	logger  *slog.Logger

	mu         sync.Mutex
	last       Status
	throttling bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSampler replaces the default system sampler.
func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

// WithLogger sets the logger used for pressure transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates a Monitor with the given thresholds.
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:     cfg,
		sampler: SystemSampler,
		logger:  slog.Default().With(slog.String("component", "memory_monitor")),
	}
	for _, opt := range opts {
		opt(m)
	}
	initMetrics()
	return m, nil
}

// Sample takes a fresh memory reading and classifies it.
//
// On sampler failure the error wraps ErrSampling and the previous status is
// returned unchanged, so callers can fall back to their last known level.
func (m *Monitor) Sample(ctx context.Context) (Status, error) {
	percent, err := m.sampler()
	if err != nil {
		m.mu.Lock()
		last := m.last
		m.mu.Unlock()
		return last, fmt.Errorf("%w: %v", ErrSampling, err)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	level := m.classify(percent)
	status := Status{
		PercentUsed:    percent,
		Level:          level,
		SampledAtMilli: time.Now().UnixMilli(),
	}

	m.mu.Lock()
	prev := m.last.Level
	m.last = status
	// Hysteresis: once throttling engages it stays on until pressure drops
	// below the critical threshold, not just below the throttling one.
	if level >= LevelThrottling {
		m.throttling = true
	} else if percent < m.cfg.CriticalPercent {
		m.throttling = false
	}
	m.mu.Unlock()

	if prev != level {
		m.logger.InfoContext(ctx, "memory pressure level changed",
			slog.String("from", prev.String()),
			slog.String("to", level.String()),
			slog.Float64("percent_used", percent))
	}
	recordSample(ctx, percent, level)

	return status, nil
}

// Last returns the most recent status without sampling.
func (m *Monitor) Last() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ShouldThrottle reports whether workers must back off before submitting
// more work. The flag latches on at the throttling threshold and releases
// only when a sample falls back below the critical threshold.
func (m *Monitor) ShouldThrottle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.throttling
}

// OptimalBatchSize derives the batch size for the current pressure level.
//
// Below the warning threshold the base size is returned unchanged. Between
// warning and throttling the size shrinks linearly from base down to a floor
// of max(1, base/4). Between throttling and emergency the floor applies.
// At emergency pressure the batch size is 1.
func (m *Monitor) OptimalBatchSize(base int) int {
	if base < 1 {
		base = 1
	}

	m.mu.Lock()
	percent := m.last.PercentUsed
	level := m.last.Level
	m.mu.Unlock()

	floor := base / 4
	if floor < 1 {
		floor = 1
	}

	switch {
	case level >= LevelEmergency:
		return 1
	case level >= LevelThrottling:
		return floor
	case level >= LevelWarning:
		span := m.cfg.ThrottlingPercent - m.cfg.WarningPercent
		frac := (percent - m.cfg.WarningPercent) / span
		size := float64(base) - frac*float64(base-floor)
		if size < float64(floor) {
			return floor
		}
		return int(size)
	default:
		return base
	}
}

// classify maps a utilization percentage to a pressure level.
func (m *Monitor) classify(percent float64) Level {
	switch {
	case percent >= m.cfg.EmergencyPercent:
		return LevelEmergency
	case percent >= m.cfg.ThrottlingPercent:
		return LevelThrottling
	case percent >= m.cfg.CriticalPercent:
		return LevelCritical
	case percent >= m.cfg.WarningPercent:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// recordSample updates the package metrics for a completed sample.
func recordSample(ctx context.Context, percent float64, level Level) {
	if memorySamples == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("level", level.String()))
	memorySamples.Add(ctx, 1, attrs)
	memoryPercent.Record(ctx, percent, attrs)
}
