// Package units provides unit-preference constants and conversions for
// display state. Internally the pipeline is metric: meters, seconds,
// seconds-per-km.
package units

// Preference values carried in the user profile.
const (
	Metric   = "metric"
	Standard = "standard" // miles / feet
)

// ValidPreferences contains all accepted preference values.
var ValidPreferences = []string{Metric, Standard}

// IsValid reports whether pref is a known unit preference.
func IsValid(pref string) bool {
	for _, p := range ValidPreferences {
		if pref == p {
			return true
		}
	}
	return false
}

const (
	metersPerMile = 1609.344
	feetPerMeter  = 3.28084
)

// Distance converts meters to the preferred large distance unit
// (kilometers or miles).
func Distance(meters float64, pref string) float64 {
	if pref == Standard {
		return meters / metersPerMile
	}
	return meters / 1000.0
}

// Elevation converts meters to the preferred elevation unit (meters or feet).
func Elevation(meters float64, pref string) float64 {
	if pref == Standard {
		return meters * feetPerMeter
	}
	return meters
}

// Pace converts seconds-per-km to the preferred pace unit
// (seconds-per-km or seconds-per-mile).
func Pace(secondsPerKm float64, pref string) float64 {
	if pref == Standard {
		return secondsPerKm * (metersPerMile / 1000.0)
	}
	return secondsPerKm
}

// Label returns the display label for the preferred distance unit.
func Label(pref string) string {
	if pref == Standard {
		return "mi"
	}
	return "km"
}
