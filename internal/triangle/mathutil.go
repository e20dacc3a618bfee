package triangle

import "math"

// safeDiv returns 0 when the denominator is zero
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 100)
}

func sum(values [4]float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
