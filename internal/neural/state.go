package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ModelState is the mutable weight set of a network: input->hidden and
// hidden->output matrices plus their bias vectors. Only the owning Network
// writes to it, and only while holding its write lock.
type ModelState struct {
	W1 *mat.Dense    // hidden x input
	B1 *mat.VecDense // hidden
	W2 *mat.Dense    // output x hidden
	B2 *mat.VecDense // output
}

func newModelState(arch Architecture, weightRange, biasRange float64, rng *rand.Rand) *ModelState {
	uniform := func(n int, r float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = (rng.Float64()*2 - 1) * r
		}
		return out
	}
	return &ModelState{
		W1: mat.NewDense(arch.HiddenSize, arch.InputSize, uniform(arch.HiddenSize*arch.InputSize, weightRange)),
		B1: mat.NewVecDense(arch.HiddenSize, uniform(arch.HiddenSize, biasRange)),
		W2: mat.NewDense(arch.OutputSize, arch.HiddenSize, uniform(arch.OutputSize*arch.HiddenSize, weightRange)),
		B2: mat.NewVecDense(arch.OutputSize, uniform(arch.OutputSize, biasRange)),
	}
}

func (s *ModelState) clone() *ModelState {
	return &ModelState{
		W1: mat.DenseCopyOf(s.W1),
		B1: mat.VecDenseCopyOf(s.B1),
		W2: mat.DenseCopyOf(s.W2),
		B2: mat.VecDenseCopyOf(s.B2),
	}
}

func (s *ModelState) architecture() Architecture {
	hidden, input := s.W1.Dims()
	output, _ := s.W2.Dims()
	return Architecture{InputSize: input, HiddenSize: hidden, OutputSize: output}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// sigmoidPrime takes the activation output, not its input.
func sigmoidPrime(y float64) float64 { return y * (1 - y) }

func activate(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, sigmoid(v.AtVec(i)))
	}
}

// forward returns the hidden and output activations for x.
func (s *ModelState) forward(x mat.Vector) (hidden, output *mat.VecDense) {
	hiddenSize, _ := s.W1.Dims()
	outputSize, _ := s.W2.Dims()

	hidden = mat.NewVecDense(hiddenSize, nil)
	hidden.MulVec(s.W1, x)
	hidden.AddVec(hidden, s.B1)
	activate(hidden)

	output = mat.NewVecDense(outputSize, nil)
	output.MulVec(s.W2, hidden)
	output.AddVec(output, s.B2)
	activate(output)
	return hidden, output
}

// backprop runs one SGD step on a single sample and returns its squared error
// averaged over the outputs, measured before the update.
func (s *ModelState) backprop(x, target mat.Vector, lr float64) float64 {
	hidden, output := s.forward(x)
	outputSize := output.Len()

	outDelta := mat.NewVecDense(outputSize, nil)
	loss := 0.0
	for k := 0; k < outputSize; k++ {
		err := target.AtVec(k) - output.AtVec(k)
		loss += err * err
		outDelta.SetVec(k, err*sigmoidPrime(output.AtVec(k)))
	}

	// hidden error uses W2 before it is updated
	hiddenDelta := mat.NewVecDense(hidden.Len(), nil)
	hiddenDelta.MulVec(s.W2.T(), outDelta)
	for j := 0; j < hidden.Len(); j++ {
		hiddenDelta.SetVec(j, hiddenDelta.AtVec(j)*sigmoidPrime(hidden.AtVec(j)))
	}

	s.W2.RankOne(s.W2, lr, outDelta, hidden)
	s.B2.AddScaledVec(s.B2, lr, outDelta)
	s.W1.RankOne(s.W1, lr, hiddenDelta, x)
	s.B1.AddScaledVec(s.B1, lr, hiddenDelta)

	return loss / float64(outputSize)
}
