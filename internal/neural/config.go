package neural

import "fmt"

// Architecture is the layer sizes of a network. It is part of the snapshot contract.
type Architecture struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`
	OutputSize int `json:"output_size"`
}

func (a Architecture) validate() error {
	if a.InputSize <= 0 || a.HiddenSize <= 0 || a.OutputSize <= 0 {
		return fmt.Errorf("invalid architecture %d-%d-%d", a.InputSize, a.HiddenSize, a.OutputSize)
	}
	return nil
}

func (a Architecture) String() string {
	return fmt.Sprintf("%d-%d-%d", a.InputSize, a.HiddenSize, a.OutputSize)
}

// Config controls network shape, initialization and training.
type Config struct {
	Architecture Architecture

	LearningRate      float64
	Epochs            int
	EvalEvery         int
	TargetLoss        float64
	TargetAccuracy    float64
	AccuracyTolerance float64
	WeightInitRange   float64
	BiasInitRange     float64
	Seed              int64
}

// DefaultConfig returns the standard 12 (or 16) input, 16 hidden, 1 output network.
func DefaultConfig(inputSize int) Config {
	return Config{
		Architecture:      Architecture{InputSize: inputSize, HiddenSize: 16, OutputSize: 1},
		LearningRate:      0.01,
		Epochs:            1000,
		EvalEvery:         100,
		TargetLoss:        0.01,
		TargetAccuracy:    0.9,
		AccuracyTolerance: 0.2,
		WeightInitRange:   0.25,
		BiasInitRange:     0.05,
		Seed:              42,
	}
}
