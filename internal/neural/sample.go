package neural

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Sample is one labelled feature vector.
type Sample struct {
	Features          []float64 `json:"features"`
	Label             int       `json:"label"`
	TargetProbability float64   `json:"target_probability"`
}

func (s Sample) validate(inputSize int) error {
	if len(s.Features) != inputSize {
		return fmt.Errorf("sample has %d features, network expects %d", len(s.Features), inputSize)
	}
	if s.Label != 0 && s.Label != 1 {
		return fmt.Errorf("label must be 0 or 1, got %d", s.Label)
	}
	if s.TargetProbability < 0 || s.TargetProbability > 1 || math.IsNaN(s.TargetProbability) {
		return fmt.Errorf("target probability %v outside [0,1]", s.TargetProbability)
	}
	return nil
}

// Shuffle returns a copy of samples in a seeded random order.
func Shuffle(samples []Sample, seed int64) []Sample {
	out := append([]Sample(nil), samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Split shuffles samples with seed and holds out validationFraction of them.
// At least one sample always stays in the training set.
func Split(samples []Sample, validationFraction float64, seed int64) (train, validation []Sample) {
	shuffled := Shuffle(samples, seed)
	n := int(math.Round(float64(len(shuffled)) * validationFraction))
	if n < 0 {
		n = 0
	}
	if n >= len(shuffled) {
		n = len(shuffled) - 1
	}
	if n <= 0 {
		return shuffled, nil
	}
	return shuffled[n:], shuffled[:n]
}

type encodedSample struct {
	x, target *mat.VecDense
	sample    Sample
}

func encode(samples []Sample, arch Architecture) ([]encodedSample, error) {
	out := make([]encodedSample, len(samples))
	for i, s := range samples {
		if err := s.validate(arch.InputSize); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		target := make([]float64, arch.OutputSize)
		for k := range target {
			target[k] = s.TargetProbability
		}
		out[i] = encodedSample{
			x:      mat.NewVecDense(arch.InputSize, append([]float64(nil), s.Features...)),
			target: mat.NewVecDense(arch.OutputSize, target),
			sample: s,
		}
	}
	return out, nil
}
