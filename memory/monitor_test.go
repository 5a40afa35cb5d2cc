package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSampler returns a sampler that always reports the given percentage.
func fixedSampler(percent float64) Sampler {
	return func() (float64, error) { return percent, nil }
}

// steppedSampler returns a sampler that replays readings in order, sticking
// on the last one.
func steppedSampler(readings ...float64) Sampler {
	i := 0
	return func() (float64, error) {
		if i >= len(readings) {
			return readings[len(readings)-1], nil
		}
		v := readings[i]
		i++
		return v, nil
	}
}

func TestMonitor_Classification(t *testing.T) {
	tests := []struct {
		percent float64
		want    Level
	}{
		{10, LevelNormal},
		{69.9, LevelNormal},
		{70, LevelWarning},
		{79.9, LevelWarning},
		{80, LevelCritical},
		{84.9, LevelCritical},
		{85, LevelThrottling},
		{89.9, LevelThrottling},
		{90, LevelEmergency},
		{100, LevelEmergency},
	}

	for _, tc := range tests {
		m, err := NewMonitor(DefaultConfig(), WithSampler(fixedSampler(tc.percent)))
		require.NoError(t, err)

		status, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tc.want, status.Level, "at %.1f%%", tc.percent)
	}
}

func TestMonitor_OptimalBatchSize(t *testing.T) {
	tests := []struct {
		percent float64
		base    int
		want    int
	}{
		{60, 100, 100},
		{75, 100, 75},
		{87, 100, 25},
		{95, 100, 1},
		{70, 100, 100}, // interpolation starts at the warning edge
		{85, 100, 25},  // floor from the throttling edge
		{95, 2, 1},
		{87, 3, 1}, // floor never drops below one
	}

	for _, tc := range tests {
		m, err := NewMonitor(DefaultConfig(), WithSampler(fixedSampler(tc.percent)))
		require.NoError(t, err)
		_, err = m.Sample(context.Background())
		require.NoError(t, err)

		assert.Equal(t, tc.want, m.OptimalBatchSize(tc.base),
			"base %d at %.1f%%", tc.base, tc.percent)
	}
}

func TestMonitor_ThrottleHysteresis(t *testing.T) {
	m, err := NewMonitor(DefaultConfig(),
		WithSampler(steppedSampler(86, 82, 78)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Sample(ctx)
	require.NoError(t, err)
	assert.True(t, m.ShouldThrottle(), "86%% engages throttling")

	_, err = m.Sample(ctx)
	require.NoError(t, err)
	assert.True(t, m.ShouldThrottle(), "82%% is below throttling but above critical, stays latched")

	_, err = m.Sample(ctx)
	require.NoError(t, err)
	assert.False(t, m.ShouldThrottle(), "78%% drops below critical, releases")
}

func TestMonitor_SamplerFailure(t *testing.T) {
	calls := 0
	flaky := func() (float64, error) {
		calls++
		if calls > 1 {
			return 0, errors.New("procfs unavailable")
		}
		return 75, nil
	}

	m, err := NewMonitor(DefaultConfig(), WithSampler(flaky))
	require.NoError(t, err)
	ctx := context.Background()

	good, err := m.Sample(ctx)
	require.NoError(t, err)

	// Failure wraps the sentinel and keeps the previous status.
	stale, err := m.Sample(ctx)
	require.ErrorIs(t, err, ErrSampling)
	assert.Equal(t, good, stale)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := Config{WarningPercent: 80, CriticalPercent: 70, ThrottlingPercent: 85, EmergencyPercent: 90}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidThresholds)

	zero := Config{}
	assert.ErrorIs(t, zero.Validate(), ErrInvalidThresholds)
}

func TestMeminfoSampler(t *testing.T) {
	dir := t.TempDir()

	t.Run("computes used from total and available", func(t *testing.T) {
		path := filepath.Join(dir, "meminfo")
		content := "MemTotal:       16000000 kB\nMemFree:         2000000 kB\nMemAvailable:    4000000 kB\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		percent, err := meminfoSampler(path)
		require.NoError(t, err)
		assert.InDelta(t, 75.0, percent, 0.01)
	})

	t.Run("rejects file without MemTotal", func(t *testing.T) {
		path := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(path, []byte("MemFree: 1 kB\n"), 0o644))

		_, err := meminfoSampler(path)
		require.Error(t, err)
	})
}
