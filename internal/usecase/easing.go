package usecase

import "math"

// Ease interpolates from startPrice to endValue with a quadratic ease-in-out.
// It is a pure function of its arguments: the same parameters always
// reproduce the same trajectory, so live ticks and any later chart
// reconstruction from stored manipulation parameters agree exactly.
func Ease(startPrice, endValue float64, durationMs, elapsedMs int64) float64 {
	if durationMs <= 0 {
		return endValue
	}
	p := float64(elapsedMs) / float64(durationMs)
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	var e float64
	if p < 0.5 {
		e = 2 * p * p
	} else {
		e = 1 - math.Pow(-2*p+2, 2)/2
	}
	return startPrice + (endValue-startPrice)*e
}

// RoundPrice rounds to 8 decimal places, the precision all stored prices use.
func RoundPrice(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
