package metrics

import "math"

// CalorieParams describes one session for the energy model.
type CalorieParams struct {
	UserWeightKg      float64
	RuckWeightKg      float64
	DistanceKm        float64
	ElevationGainM    float64
	ElevationLossM    float64
	DurationSeconds   float64
	Gender            string // "male", "female", or ""
	TerrainMultiplier float64
}

// Calories estimates energy expenditure for a loaded walk using a MET model:
// base MET by speed band, adjusted for average grade and carried load,
// clamped to [2, 15], then scaled by terrain surface cost and a gender
// factor. Returns 0 for nonsensical input.
func Calories(p CalorieParams) float64 {
	if p.UserWeightKg <= 0 || p.DistanceKm < 0 || p.ElevationGainM < 0 {
		return 0
	}

	var speedKmh, durationHours float64
	if p.DurationSeconds > 0 {
		durationHours = p.DurationSeconds / 3600.0
		speedKmh = p.DistanceKm / durationHours
	} else {
		// No duration known: assume a moderate 5 km/h walk.
		speedKmh = 5.0
		durationHours = p.DistanceKm / speedKmh
	}
	speedMph := speedKmh * 0.621371

	avgGrade := 0.0
	if p.DistanceKm > 0 {
		avgGrade = ((p.ElevationGainM - p.ElevationLossM) / (p.DistanceKm * 1000.0)) * 100.0
	}

	ruckLbs := p.RuckWeightKg * 2.20462
	met := metByGrade(speedMph, avgGrade, ruckLbs)

	baseCalories := met * (p.UserWeightKg + p.RuckWeightKg) * durationHours

	terrain := p.TerrainMultiplier
	if terrain <= 0 {
		terrain = 1.0
	}
	calories := baseCalories * terrain

	switch p.Gender {
	case "female":
		calories *= 0.85
	case "male":
		// baseline
	default:
		calories *= 0.925
	}

	return math.Max(0, calories)
}

// metByGrade computes the MET value for loaded walking at the given speed
// and average grade.
func metByGrade(speedMph, grade, ruckLbs float64) float64 {
	var base float64
	switch {
	case speedMph < 2.0:
		base = 2.5
	case speedMph < 2.5:
		base = 3.0
	case speedMph < 3.0:
		base = 3.5
	case speedMph < 3.5:
		base = 4.0
	case speedMph < 4.0:
		base = 4.5
	case speedMph < 5.0:
		base = 5.0
	default:
		base = 6.0
	}

	var gradeAdj float64
	if grade > 0 {
		gradeAdj = grade * 0.6 * (speedMph / 4.0)
	} else if grade < 0 {
		absGrade := -grade
		if absGrade <= 10 {
			// Slight downhill is easier than flat.
			gradeAdj = -absGrade * 0.1
		} else {
			// Steep downhill costs braking energy.
			gradeAdj = (absGrade - 10) * 0.15
		}
	}

	loadAdj := math.Min(ruckLbs*0.05, 5.0)

	return math.Max(2.0, math.Min(base+gradeAdj+loadAdj, 15.0))
}
