package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rucktrack/sessionkit/internal/model"
)

func pacePair(speedMps float64, dt time.Duration, start time.Time) (model.LocationSample, model.LocationSample) {
	// ~0.0001 deg latitude is 11.1 m; scale to the requested speed.
	meters := speedMps * dt.Seconds()
	prev := model.NewLocationSample(40.0, -74.0, 10, 5, speedMps, start)
	curr := model.NewLocationSample(40.0+meters/111195.0, -74.0, 10, 5, speedMps, start.Add(dt))
	return prev, curr
}

func TestPaceSuppressedDuringWarmup(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(60*time.Second, 5*time.Second, 10, 3, 1.9)

	prev, curr := pacePair(3.0, time.Second, start)
	p.Observe(prev, curr)

	// Under a minute of elapsed session time: always 0, whatever the speed.
	assert.Zero(t, p.Current(start.Add(30*time.Second), start))
	assert.Zero(t, p.Average(start.Add(59*time.Second), start, 5000, 59*time.Second))

	// After warmup the pace appears.
	assert.Greater(t, p.Current(start.Add(61*time.Second), start), 0.0)
}

func TestPaceCaching(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(60*time.Second, 5*time.Second, 10, 3, 1.9)

	prev, curr := pacePair(2.5, time.Second, start.Add(70*time.Second))
	p.Observe(prev, curr)

	first := p.Current(start.Add(80*time.Second), start)
	assert.Greater(t, first, 0.0)

	// A faster observation inside the cache window is not reflected yet.
	prev2, curr2 := pacePair(5.0, time.Second, start.Add(81*time.Second))
	p.Observe(prev2, curr2)
	assert.Equal(t, first, p.Current(start.Add(82*time.Second), start))

	// After the cache interval the recomputation picks it up.
	recomputed := p.Current(start.Add(86*time.Second), start)
	assert.NotEqual(t, first, recomputed)
}

func TestPaceSmoothingWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(0, 0, 10, 3, 1.9)

	// One observation: raw value used directly (window below minimum).
	prev, curr := pacePair(2.5, time.Second, start)
	p.Observe(prev, curr)
	single := p.Current(start.Add(time.Second), start)
	assert.InDelta(t, 400.0, single, 10.0) // 2.5 m/s is 400 s/km

	// Several mixed observations: smoothed mean, between the extremes.
	for i := 0; i < 5; i++ {
		prev, curr = pacePair(5.0, time.Second, start.Add(time.Duration(i+2)*time.Second))
		p.Observe(prev, curr)
	}
	smoothed := p.Current(start.Add(10*time.Second), start)
	assert.Greater(t, smoothed, 200.0) // faster than pure 5 m/s...
	assert.Less(t, smoothed, 400.0)    // ...but pulled down from the slow start
}

func TestPaceUsesDeviceSpeedWhenCreeping(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(0, 0, 10, 3, 1.9)

	// Points barely move (implied ~0.1 m/s) but the device reports 1.5 m/s:
	// the fused estimate wins.
	prev := model.NewLocationSample(40.0, -74.0, 10, 5, 1.5, start)
	curr := model.NewLocationSample(40.0+0.1/111195.0, -74.0, 10, 5, 1.5, start.Add(time.Second))
	p.Observe(prev, curr)

	got := p.Current(start.Add(time.Second), start)
	assert.InDelta(t, 1000.0/1.5, got, 5.0)
}

func TestPaceIgnoresNonPositiveIntervals(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(0, 0, 10, 3, 1.9)

	prev, curr := pacePair(3.0, time.Second, start)
	curr.Timestamp = prev.Timestamp // zero interval
	p.Observe(prev, curr)

	assert.Zero(t, p.Current(start.Add(time.Second), start))
}

func TestAveragePace(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := NewPaceCalculator(60*time.Second, 5*time.Second, 10, 3, 1.9)

	// 5 km in 30 minutes of active time: 360 s/km.
	got := p.Average(start.Add(30*time.Minute), start, 5000, 30*time.Minute)
	assert.InDelta(t, 360.0, got, 1e-9)

	// Zero distance yields zero, not a division blowup.
	p2 := NewPaceCalculator(0, 0, 10, 3, 1.9)
	assert.Zero(t, p2.Average(start.Add(time.Hour), start, 0, time.Hour))
}
