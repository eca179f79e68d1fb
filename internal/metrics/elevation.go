package metrics

import "math"

// ElevationAccumulator totals elevation gain and loss with a noise gate.
// Deltas smaller than the threshold are discarded as sensor noise; the
// baseline still advances every sample, so the comparison is always between
// consecutive pairs. Barometric-assisted devices report much steadier
// altitude and use a tighter threshold.
type ElevationAccumulator struct {
	noiseM float64

	gainM   float64
	lossM   float64
	hasPrev bool
	prevM   float64
}

// NewElevationAccumulator returns an accumulator with the given noise
// threshold in meters.
func NewElevationAccumulator(noiseM float64) *ElevationAccumulator {
	return &ElevationAccumulator{noiseM: noiseM}
}

// Add feeds the next sample's elevation.
func (e *ElevationAccumulator) Add(elevationM float64) {
	if !e.hasPrev {
		e.hasPrev = true
		e.prevM = elevationM
		return
	}
	delta := elevationM - e.prevM
	e.prevM = elevationM
	if math.Abs(delta) < e.noiseM {
		return
	}
	if delta > 0 {
		e.gainM += delta
	} else {
		e.lossM += -delta
	}
}

// GainM returns accumulated elevation gain in meters.
func (e *ElevationAccumulator) GainM() float64 { return e.gainM }

// LossM returns accumulated elevation loss in meters.
func (e *ElevationAccumulator) LossM() float64 { return e.lossM }
