package core

import "math"

// MinimumDB is the floor used when reporting levels in dB.
// Anything quieter is reported as MinimumDB instead of -Inf.
const MinimumDB = -100.0

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DBToLinear converts dB to linear amplitude (20*log10 convention).
// -Inf maps to exactly 0 and 0 dB maps to exactly 1.
func DBToLinear(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}

	if db == 0 {
		return 1
	}

	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to dB (20*log10 convention).
// Returns -Inf for zero and NaN for negative values.
func LinearToDB(linear float64) float64 {
	if linear < 0 {
		return math.NaN()
	}

	if linear == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(linear)
}

// LevelDB converts a linear peak level to dB for display, clamped at MinimumDB.
func LevelDB(linear float64) float64 {
	db := LinearToDB(math.Abs(linear))
	if math.IsNaN(db) || db < MinimumDB {
		return MinimumDB
	}

	return db
}
