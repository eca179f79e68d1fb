package metrics

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rucktrack/sessionkit/internal/geo"
	"github.com/rucktrack/sessionkit/internal/model"
)

// PaceCalculator derives the current pace in seconds per kilometer.
//
// GPS is too noisy at session start, so pace is suppressed entirely for the
// warmup period. Recomputation is capped at the cache interval. Raw readings
// come from distance/time between the last two accepted samples when the
// implied speed is above a walking threshold, falling back to the
// device-reported speed for faster movement, and are smoothed with a simple
// moving average over a trailing window once enough values are available.
type PaceCalculator struct {
	warmup        time.Duration
	cacheInterval time.Duration
	windowSize    int
	minWindow     int
	walkingMps    float64

	window []float64

	cachedPace   float64
	lastComputed time.Time

	cachedAvg       float64
	lastAvgComputed time.Time
}

// NewPaceCalculator builds a calculator with the given smoothing and caching
// parameters.
func NewPaceCalculator(warmup, cacheInterval time.Duration, windowSize, minWindow int, walkingMps float64) *PaceCalculator {
	if windowSize < 1 {
		windowSize = 1
	}
	return &PaceCalculator{
		warmup:        warmup,
		cacheInterval: cacheInterval,
		windowSize:    windowSize,
		minWindow:     minWindow,
		walkingMps:    walkingMps,
	}
}

// Observe feeds the pair of most recently accepted samples into the raw pace
// window.
func (p *PaceCalculator) Observe(prev, curr model.LocationSample) {
	dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return
	}
	hop := geo.Haversine(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
	implied := geo.ImpliedSpeed(hop, dt)

	speed := implied
	if implied <= p.walkingMps && curr.SpeedMps > implied {
		// Slow or stationary fix: the device's fused speed estimate is
		// steadier than two noisy points.
		speed = curr.SpeedMps
	}
	if speed <= 0 {
		return
	}

	raw := 1000.0 / speed // seconds per km
	p.window = append(p.window, raw)
	if len(p.window) > p.windowSize {
		p.window = p.window[len(p.window)-p.windowSize:]
	}
}

// Current returns the smoothed pace, or 0 during warmup or before any
// movement was observed. Recomputes at most once per cache interval.
func (p *PaceCalculator) Current(now, sessionStart time.Time) float64 {
	if now.Sub(sessionStart) < p.warmup {
		return 0
	}
	if !p.lastComputed.IsZero() && now.Sub(p.lastComputed) < p.cacheInterval {
		return p.cachedPace
	}

	p.lastComputed = now
	switch {
	case len(p.window) == 0:
		p.cachedPace = 0
	case len(p.window) < p.minWindow:
		p.cachedPace = p.window[len(p.window)-1]
	default:
		p.cachedPace = stat.Mean(p.window, nil)
	}
	return p.cachedPace
}

// Average returns total elapsed active time over total distance in seconds
// per km, with the same warmup suppression and caching as Current.
func (p *PaceCalculator) Average(now, sessionStart time.Time, totalM float64, activeElapsed time.Duration) float64 {
	if now.Sub(sessionStart) < p.warmup {
		return 0
	}
	if !p.lastAvgComputed.IsZero() && now.Sub(p.lastAvgComputed) < p.cacheInterval {
		return p.cachedAvg
	}

	p.lastAvgComputed = now
	if totalM <= 0 {
		p.cachedAvg = 0
	} else {
		p.cachedAvg = activeElapsed.Seconds() / (totalM / 1000.0)
	}
	return p.cachedAvg
}
