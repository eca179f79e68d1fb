package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElevationAccumulator(t *testing.T) {
	t.Parallel()

	t.Run("accumulates gain and loss separately", func(t *testing.T) {
		t.Parallel()
		e := NewElevationAccumulator(0.5)
		for _, elev := range []float64{100, 102, 101, 104, 103} {
			e.Add(elev)
		}
		assert.InDelta(t, 5.0, e.GainM(), 1e-9) // +2 +3
		assert.InDelta(t, 2.0, e.LossM(), 1e-9) // -1 -1
	})

	t.Run("discards sub-threshold noise", func(t *testing.T) {
		t.Parallel()
		e := NewElevationAccumulator(0.5)
		for _, elev := range []float64{100, 100.2, 100.4, 100.2, 100.4} {
			e.Add(elev)
		}
		assert.Zero(t, e.GainM())
		assert.Zero(t, e.LossM())
	})

	t.Run("threshold boundary counts as real change", func(t *testing.T) {
		t.Parallel()
		e := NewElevationAccumulator(0.5)
		e.Add(100)
		e.Add(100.5)
		assert.InDelta(t, 0.5, e.GainM(), 1e-9)
	})

	t.Run("barometric threshold admits finer changes", func(t *testing.T) {
		t.Parallel()
		gps := NewElevationAccumulator(0.5)
		baro := NewElevationAccumulator(0.1)
		for _, elev := range []float64{100, 100.3, 100.6, 100.9} {
			gps.Add(elev)
			baro.Add(elev)
		}
		assert.Zero(t, gps.GainM())
		assert.InDelta(t, 0.9, baro.GainM(), 1e-9)
	})
}
