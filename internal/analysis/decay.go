package analysis

import "math"

// DecayWeight computes decay^steps, the weight of an observation that is
// `steps` intervals older than the most recent one.
func DecayWeight(steps int, decay float64) float64 {
	if decay <= 0 || steps < 0 {
		return 0
	}
	return math.Pow(decay, float64(steps))
}

// recencyWeights returns n weights where the last (most recent) entry is 1
// and each earlier entry is multiplied by a further decay.
func recencyWeights(n int, decay float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = DecayWeight(n-1-i, decay)
	}
	return w
}
