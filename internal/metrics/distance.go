// Package metrics computes derived session metrics (distance, pace,
// elevation, calories) from accepted sensor samples. Everything here is
// deterministic given the sample sequence; the trackers own buffering and
// I/O.
package metrics

import (
	"github.com/rucktrack/sessionkit/internal/geo"
	"github.com/rucktrack/sessionkit/internal/model"
)

// DistanceAccumulator keeps a running great-circle total over the accepted
// sample buffer. It remembers the last processed index so recomputation
// after new samples or a buffer trim is O(new samples), and it keeps its own
// copy of the last counted coordinates so trimming the buffer head never
// changes the total already accumulated.
type DistanceAccumulator struct {
	minDisplacementM float64
	settleDistanceM  float64

	totalM    float64
	settledM  float64
	settled   bool
	nextIndex int

	hasPrev  bool
	prevLat  float64
	prevLon  float64
}

// NewDistanceAccumulator returns an accumulator with the given jitter filter
// and settle distance, both in meters.
func NewDistanceAccumulator(minDisplacementM, settleDistanceM float64) *DistanceAccumulator {
	return &DistanceAccumulator{
		minDisplacementM: minDisplacementM,
		settleDistanceM:  settleDistanceM,
		settled:          settleDistanceM <= 0,
	}
}

// Process consumes samples appended to buf since the last call and returns
// the updated total in meters. Hops below the minimum displacement are
// treated as jitter: the sample is skipped and displacement keeps
// accumulating against the last counted point. Movement before the settle
// distance has accumulated is dropped from the total (startup drift), but
// the points themselves remain in the buffer.
func (a *DistanceAccumulator) Process(buf []model.LocationSample) float64 {
	for ; a.nextIndex < len(buf); a.nextIndex++ {
		s := buf[a.nextIndex]
		if !a.hasPrev {
			a.hasPrev = true
			a.prevLat, a.prevLon = s.Latitude, s.Longitude
			continue
		}

		hop := geo.Haversine(a.prevLat, a.prevLon, s.Latitude, s.Longitude)
		if hop < a.minDisplacementM {
			continue
		}
		a.prevLat, a.prevLon = s.Latitude, s.Longitude

		if !a.settled {
			a.settledM += hop
			if a.settledM >= a.settleDistanceM {
				a.settled = true
			}
			continue
		}
		a.totalM += hop
	}
	return a.totalM
}

// TotalM returns the accumulated distance in meters.
func (a *DistanceAccumulator) TotalM() float64 { return a.totalM }

// Settled reports whether the settle distance has been covered and distance
// is being counted.
func (a *DistanceAccumulator) Settled() bool { return a.settled }

// ShiftIndex informs the accumulator that n samples were trimmed from the
// head of the buffer. Must be called after every trim or Process would
// re-count surviving samples.
func (a *DistanceAccumulator) ShiftIndex(n int) {
	a.nextIndex -= n
	if a.nextIndex < 0 {
		a.nextIndex = 0
	}
}
