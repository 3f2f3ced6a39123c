// Package mathutil holds the rounding rule shared by scoring and recap.
package mathutil

import "math"

// roundingEpsilon absorbs binary representation error such as
// 83.335*100 = 8333.499999..., so the visible decimal rounds half-up.
const roundingEpsilon = 1e-9

// RoundHalfUp rounds v to places decimals, halves away from zero.
func RoundHalfUp(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	pow := math.Pow(10, float64(places))
	if v < 0 {
		return -math.Floor(-v*pow+0.5+roundingEpsilon) / pow
	}
	return math.Floor(v*pow+0.5+roundingEpsilon) / pow
}

// Round2 is RoundHalfUp to two decimals, the precision of every grade.
func Round2(v float64) float64 {
	return RoundHalfUp(v, 2)
}
