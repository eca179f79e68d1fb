package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rucktrack/sessionkit/internal/model"
)

// walkNorth builds n samples marching north at ~11.1 m per step, one second
// apart.
func walkNorth(n int, start time.Time) []model.LocationSample {
	samples := make([]model.LocationSample, n)
	for i := range samples {
		samples[i] = model.NewLocationSample(
			40.0+float64(i)*0.0001, -74.0, 10.0, 5.0, 1.4,
			start.Add(time.Duration(i)*time.Second),
		)
	}
	return samples
}

func TestDistanceAccumulatorBasics(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	buf := walkNorth(10, start)

	acc := NewDistanceAccumulator(5.0, 0)
	total := acc.Process(buf)

	// 9 hops of ~11.1 m.
	assert.InDelta(t, 100.1, total, 1.5)
	assert.Equal(t, total, acc.TotalM())

	// Reprocessing the same buffer adds nothing.
	assert.Equal(t, total, acc.Process(buf))
}

func TestDistanceAccumulatorMonotone(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	buf := walkNorth(50, start)

	acc := NewDistanceAccumulator(5.0, 0)
	prev := 0.0
	for i := 1; i <= len(buf); i++ {
		total := acc.Process(buf[:i])
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
}

func TestDistanceAccumulatorJitterFilter(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	// All hops ~1.1 m: below the 5 m displacement filter, so no distance
	// accumulates even though the walker drifts 11 m overall... until the
	// drift against the last counted point crosses the filter.
	samples := make([]model.LocationSample, 10)
	for i := range samples {
		samples[i] = model.NewLocationSample(
			40.0+float64(i)*0.00001, -74.0, 10.0, 5.0, 0.1,
			start.Add(time.Duration(i)*time.Second),
		)
	}

	acc := NewDistanceAccumulator(5.0, 0)
	total := acc.Process(samples)

	// Displacement accumulates against the anchor point, so the total is the
	// anchor-to-crossing hops, not the per-step jitter sum.
	assert.InDelta(t, 5.55, total, 1.5)
}

func TestDistanceAccumulatorSettleDistance(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	buf := walkNorth(10, start)

	// First ~20 m of movement is treated as startup drift.
	acc := NewDistanceAccumulator(5.0, 20.0)
	total := acc.Process(buf)

	full := NewDistanceAccumulator(5.0, 0)
	fullTotal := full.Process(buf)

	assert.True(t, acc.Settled())
	assert.Less(t, total, fullTotal)
	assert.InDelta(t, fullTotal-total, 22.2, 1.5)
}

func TestDistanceAccumulatorTrimInvariance(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	buf := walkNorth(100, start)

	// Reference: process everything in one go.
	ref := NewDistanceAccumulator(5.0, 0)
	want := ref.Process(buf)

	// Process half, trim the head, shift, keep processing.
	acc := NewDistanceAccumulator(5.0, 0)
	acc.Process(buf[:60])
	before := acc.TotalM()

	const trim = 40
	trimmed := append([]model.LocationSample(nil), buf[trim:]...)
	acc.ShiftIndex(trim)
	require.Equal(t, before, acc.TotalM(), "trim must not change the running total")

	got := acc.Process(trimmed)
	assert.InDelta(t, want, got, 1e-9)
}

func TestDistanceAccumulatorShiftIndexClamps(t *testing.T) {
	t.Parallel()

	acc := NewDistanceAccumulator(5.0, 0)
	acc.ShiftIndex(10)
	// Must not panic or go negative.
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.NotPanics(t, func() { acc.Process(walkNorth(3, start)) })
}
