package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	t.Parallel()

	t.Run("identical points", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, Haversine(40.0, -74.0, 40.0, -74.0))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		t.Parallel()
		// One degree of latitude is roughly 111.2 km everywhere.
		d := Haversine(40.0, -74.0, 41.0, -74.0)
		assert.InDelta(t, 111195, d, 200)
	})

	t.Run("short hop", func(t *testing.T) {
		t.Parallel()
		// ~11 m of northward movement.
		d := Haversine(40.0, -74.0, 40.0001, -74.0)
		assert.InDelta(t, 11.1, d, 0.2)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := Haversine(51.5, -0.12, 48.85, 2.35)
		b := Haversine(48.85, 2.35, 51.5, -0.12)
		assert.InDelta(t, a, b, 1e-9)
	})
}

func TestHaversine3D(t *testing.T) {
	t.Parallel()

	// Pure vertical movement reduces to the elevation delta.
	d := Haversine3D(40.0, -74.0, 100, 40.0, -74.0, 130)
	assert.InDelta(t, 30.0, d, 1e-9)

	// 3D distance is never shorter than flat distance.
	flat := Haversine(40.0, -74.0, 40.0001, -74.0)
	with := Haversine3D(40.0, -74.0, 0, 40.0001, -74.0, 5)
	assert.GreaterOrEqual(t, with, flat)
}

func TestImpliedSpeed(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.5, ImpliedSpeed(25, 10), 1e-9)
	assert.Zero(t, ImpliedSpeed(25, 0))
	assert.Zero(t, ImpliedSpeed(25, -3))
}
