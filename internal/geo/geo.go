// Package geo provides great-circle distance math for GPS samples.
package geo

import "math"

const earthRadiusM = 6371000

// Haversine returns the great-circle distance in meters between two
// lat/lon pairs given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLatRad := (lat2 - lat1) * math.Pi / 180
	deltaLonRad := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLatRad/2)*math.Sin(deltaLatRad/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLonRad/2)*math.Sin(deltaLonRad/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Haversine3D returns the distance including the elevation delta, which
// catches vertical GPS spikes that a flat distance would miss.
func Haversine3D(lat1, lon1, elev1, lat2, lon2, elev2 float64) float64 {
	horizontal := Haversine(lat1, lon1, lat2, lon2)
	vertical := math.Abs(elev2 - elev1)
	return math.Sqrt(horizontal*horizontal + vertical*vertical)
}

// ImpliedSpeed returns the speed in m/s implied by covering meters in
// seconds. Returns 0 for non-positive durations.
func ImpliedSpeed(meters, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return meters / seconds
}
