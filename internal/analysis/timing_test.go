package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingOptimizer_Score(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())

	tests := []struct {
		name        string
		at          time.Time
		multiplier  float64
		peakHour    bool
		peakDay     bool
		weekend     bool
		optimalTime bool
	}{
		{
			name:        "tuesday 14:00 UTC",
			at:          time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
			multiplier:  3.6,
			peakHour:    true,
			peakDay:     true,
			optimalTime: true,
		},
		{
			name:       "saturday late night",
			at:         time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC),
			multiplier: 0.6 * 0.4,
			weekend:    true,
		},
		{
			name:       "monday early morning",
			at:         time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC),
			multiplier: 0.7,
		},
		{
			name:        "monday peak hour",
			at:          time.Date(2024, 3, 4, 16, 59, 0, 0, time.UTC),
			multiplier:  2.0,
			peakHour:    true,
			optimalTime: true,
		},
		{
			name:       "monday evening is neutral",
			at:         time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC),
			multiplier: 1.0,
		},
		{
			name:        "wednesday evening is still optimal",
			at:          time.Date(2024, 3, 6, 20, 0, 0, 0, time.UTC),
			multiplier:  1.8,
			peakDay:     true,
			optimalTime: true,
		},
		{
			name:        "non-UTC input is evaluated in UTC",
			at:          time.Date(2024, 3, 5, 9, 0, 0, 0, time.FixedZone("EST", -5*3600)),
			multiplier:  3.6,
			peakHour:    true,
			peakDay:     true,
			optimalTime: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := opt.Score(TimingInput{Now: tt.at, TargetTime: tt.at, AudienceType: "general"})
			assert.InDelta(t, tt.multiplier, c.Metric(MetricCurrentMultiplier), 1e-9)
			assert.Equal(t, tt.peakHour, c.Flag(MetricIsPeakHour))
			assert.Equal(t, tt.peakDay, c.Flag(MetricIsPeakDay))
			assert.Equal(t, tt.weekend, c.Flag(MetricIsWeekend))
			assert.Equal(t, tt.optimalTime, c.Flag(MetricIsOptimalTime))
			assert.InDelta(t, clamp01(tt.multiplier/2), c.NormalizedScore, 1e-9)
			assert.Equal(t, "general", c.Label(LabelAudienceType))
		})
	}
}

func TestTimingOptimizer_TargetTimeWins(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())
	now := time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC)
	target := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	c := opt.Score(TimingInput{Now: now, TargetTime: target, TargetTimezone: "Asia/Tokyo"})
	assert.InDelta(t, 3.6, c.Metric(MetricCurrentMultiplier), 1e-9)
	assert.Equal(t, "2024-03-05T23:00:00+09:00", c.Label(LabelTargetLocal))
	assert.Zero(t, c.Metric(MetricHoursToOptimal))
}

func TestTimingOptimizer_HoursToOptimal(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())
	monday9 := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

	c := opt.Score(TimingInput{Now: monday9, TargetTime: monday9})
	assert.InDelta(t, 3, c.Metric(MetricHoursToOptimal), 1e-9)
	assert.Equal(t, "2024-03-04T12:00:00Z", c.Label(LabelNextOptimalAt))
}

func TestTimingOptimizer_OptimalWindows(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // Monday

	slots := opt.OptimalWindows(from, 72*time.Hour, 3, "Europe/Paris")
	require.Len(t, slots, 3)

	assert.Equal(t, time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC), slots[1].Start)
	assert.Equal(t, time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC), slots[2].Start)

	for _, s := range slots {
		assert.GreaterOrEqual(t, s.Multiplier, 1.5)
		assert.Contains(t, s.LocalTimes, "UTC")
		assert.Contains(t, s.LocalTimes, "America/New_York")
		assert.Contains(t, s.LocalTimes, "Asia/Tokyo")
		assert.Contains(t, s.LocalTimes, "Europe/Paris")
	}
	assert.Equal(t, "2024-03-05T23:00:00+09:00", slots[0].LocalTimes["Asia/Tokyo"])
}

func TestTimingOptimizer_OptimalWindowsDefaults(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())
	from := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)

	slots := opt.OptimalWindows(from, 0, 0, "Not/AZone")
	require.Len(t, slots, DefaultTimingConfig().DefaultWindowLimit)
	for _, s := range slots {
		assert.False(t, s.Start.Before(from))
		assert.NotContains(t, s.LocalTimes, "Not/AZone")
	}
}

func TestTimingOptimizer_NoWindowsInShortHorizon(t *testing.T) {
	opt := NewTimingOptimizer(DefaultTimingConfig())
	saturday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, opt.OptimalWindows(saturday, 6*time.Hour, 5, ""))
}
