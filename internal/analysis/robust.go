package analysis

import "math"

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// clamp01 clips to [0,1] and maps NaN to 0.
func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return clip(x, 0, 1)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// calibrated maps a [0,1] evidence score onto a probability via sigmoid(6x-3).
func calibrated(x float64) float64 {
	return sigmoid(6*x - 3)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	s := 0.0
	for _, v := range xs {
		s += (v - m) * (v - m)
	}
	return math.Sqrt(s / float64(len(xs)))
}

// coefficientOfVariation is std/mean with the denominator falling back to 1.
func coefficientOfVariation(xs []float64) float64 {
	m := mean(xs)
	if m == 0 {
		m = 1
	}
	return stddev(xs) / m
}

// logScale maps v onto [0,1] as log10(v+1)/log10(ceiling+1).
func logScale(v, ceiling float64) float64 {
	if v <= 0 || ceiling <= 0 {
		return 0
	}
	return clamp01(math.Log10(v+1) / math.Log10(ceiling+1))
}
