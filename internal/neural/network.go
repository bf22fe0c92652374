package neural

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

// HistoryEntry is one evaluation point of a training run.
type HistoryEntry struct {
	RunID              string   `json:"run_id"`
	Epoch              int      `json:"epoch"`
	Loss               float64  `json:"loss"`
	TrainAccuracy      float64  `json:"train_accuracy"`
	ValidationAccuracy *float64 `json:"validation_accuracy,omitempty"`
}

// Performance is the summary of the most recent training run.
type Performance struct {
	RunID           string    `json:"run_id"`
	TrainedAt       time.Time `json:"trained_at"`
	Epochs          int       `json:"epochs"`
	StoppedEarly    bool      `json:"stopped_early"`
	FinalLoss       float64   `json:"final_loss"`
	TrainingSamples int       `json:"training_samples"`
	Training        Metrics   `json:"training"`
	Validation      *Metrics  `json:"validation,omitempty"`
}

// TrainInput is the data and callbacks for one training run.
type TrainInput struct {
	Train      []Sample
	Validation []Sample
	// Progress, when set, receives every history entry as it is recorded.
	Progress func(HistoryEntry)
}

// TrainingRun is the result of Train. Its History is also appended to the
// network's cumulative log.
type TrainingRun struct {
	ID           string         `json:"id"`
	Epochs       int            `json:"epochs"`
	StoppedEarly bool           `json:"stopped_early"`
	FinalLoss    float64        `json:"final_loss"`
	Duration     time.Duration  `json:"duration"`
	History      []HistoryEntry `json:"history"`
	Performance  Performance    `json:"performance"`
}

// Network owns a ModelState. Training takes the write lock for the whole run,
// so it never overlaps with Predict or Evaluate on the same instance. Serve
// through Freeze and Snapshot instead of sharing a Network.
type Network struct {
	mu          sync.RWMutex
	cfg         Config
	state       *ModelState
	rng         *rand.Rand
	history     []HistoryEntry
	performance *Performance
}

func NewNetwork(cfg Config) (*Network, error) {
	if err := cfg.Architecture.validate(); err != nil {
		return nil, apperrors.NewConfigurationError(err.Error(), err)
	}
	if cfg.LearningRate <= 0 || cfg.Epochs <= 0 {
		return nil, apperrors.NewConfigurationError("learning rate and epochs must be positive", nil)
	}
	if cfg.EvalEvery <= 0 {
		cfg.EvalEvery = cfg.Epochs
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Network{
		cfg:   cfg,
		state: newModelState(cfg.Architecture, cfg.WeightInitRange, cfg.BiasInitRange, rng),
		rng:   rng,
	}, nil
}

// Thaw creates a trainable network from a snapshot, for continued training.
// Architecture is taken from the snapshot; cfg supplies the training settings.
func Thaw(s *Snapshot, cfg Config) *Network {
	cfg.Architecture = s.arch
	if cfg.EvalEvery <= 0 {
		cfg.EvalEvery = cfg.Epochs
	}
	n := &Network{
		cfg:     cfg,
		state:   s.state.clone(),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		history: append([]HistoryEntry(nil), s.history...),
	}
	if s.performance != nil {
		p := *s.performance
		n.performance = &p
	}
	return n
}

func (n *Network) Architecture() Architecture { return n.cfg.Architecture }

// Predict runs the forward pass for one feature vector.
func (n *Network) Predict(features []float64) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return predict(n.state, n.cfg.Architecture, features)
}

// PredictWithConfidence returns the prediction and its distance from the decision boundary.
func (n *Network) PredictWithConfidence(features []float64) (float64, float64, error) {
	p, err := n.Predict(features)
	if err != nil {
		return 0, 0, err
	}
	return p, confidence(p), nil
}

// Evaluate scores samples without updating weights.
func (n *Network) Evaluate(samples []Sample) (Metrics, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	encoded, err := encode(samples, n.cfg.Architecture)
	if err != nil {
		return Metrics{}, apperrors.NewValidationError("invalid evaluation samples", err)
	}
	return n.evaluate(encoded), nil
}

func (n *Network) evaluate(encoded []encodedSample) Metrics {
	preds := make([]float64, len(encoded))
	samples := make([]Sample, len(encoded))
	for i, e := range encoded {
		_, out := n.state.forward(e.x)
		preds[i] = out.AtVec(0)
		samples[i] = e.sample
	}
	return computeMetrics(preds, samples, n.cfg.AccuracyTolerance)
}

// Train runs per-sample SGD over epoch-shuffled data until the epoch cap or
// until loss and accuracy both reach their targets. Cancelling ctx stops
// between epochs and keeps the weights learned so far.
func (n *Network) Train(ctx context.Context, in TrainInput) (*TrainingRun, error) {
	if len(in.Train) == 0 {
		return nil, apperrors.NewValidationError("training set is empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	train, err := encode(in.Train, n.cfg.Architecture)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid training samples", err)
	}
	validation, err := encode(in.Validation, n.cfg.Architecture)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid validation samples", err)
	}

	started := time.Now()
	run := &TrainingRun{ID: uuid.NewString()}
	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	record := func(epoch int, loss, trainAcc float64) {
		entry := HistoryEntry{RunID: run.ID, Epoch: epoch, Loss: loss, TrainAccuracy: trainAcc}
		if len(validation) > 0 {
			acc := n.evaluate(validation).Accuracy
			entry.ValidationAccuracy = &acc
		}
		run.History = append(run.History, entry)
		if in.Progress != nil {
			in.Progress(entry)
		}
	}

	var loss float64
	for epoch := 1; epoch <= n.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			n.finish(run, train, validation, loss, started)
			return run, apperrors.NewTimeoutError("training cancelled", err)
		}

		n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		total := 0.0
		for _, idx := range order {
			total += n.state.backprop(train[idx].x, train[idx].target, n.cfg.LearningRate)
		}
		loss = total / float64(len(train))
		run.Epochs = epoch

		trainAcc := n.evaluate(train).Accuracy
		converged := loss < n.cfg.TargetLoss && trainAcc > n.cfg.TargetAccuracy
		if epoch%n.cfg.EvalEvery == 0 || converged || epoch == n.cfg.Epochs {
			record(epoch, loss, trainAcc)
		}
		if converged {
			run.StoppedEarly = epoch < n.cfg.Epochs
			break
		}
	}

	n.finish(run, train, validation, loss, started)
	return run, nil
}

func (n *Network) finish(run *TrainingRun, train, validation []encodedSample, loss float64, started time.Time) {
	perf := Performance{
		RunID:           run.ID,
		TrainedAt:       time.Now().UTC(),
		Epochs:          run.Epochs,
		StoppedEarly:    run.StoppedEarly,
		FinalLoss:       loss,
		TrainingSamples: len(train),
		Training:        n.evaluate(train),
	}
	if len(validation) > 0 {
		v := n.evaluate(validation)
		perf.Validation = &v
	}
	run.FinalLoss = loss
	run.Duration = time.Since(started)
	run.Performance = perf
	n.performance = &perf
	n.history = append(n.history, run.History...)
}

// History returns the cumulative training log across runs.
func (n *Network) History() []HistoryEntry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]HistoryEntry(nil), n.history...)
}

// Freeze copies the current weights into an immutable Snapshot.
func (n *Network) Freeze() *Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := &Snapshot{
		arch:    n.cfg.Architecture,
		state:   n.state.clone(),
		history: append([]HistoryEntry(nil), n.history...),
	}
	if n.performance != nil {
		p := *n.performance
		s.performance = &p
	}
	return s
}

func predict(state *ModelState, arch Architecture, features []float64) (float64, error) {
	if len(features) != arch.InputSize {
		return 0, apperrors.NewModelError(
			fmt.Sprintf("feature vector has %d values, model expects %d", len(features), arch.InputSize), nil)
	}
	_, out := state.forward(mat.NewVecDense(len(features), append([]float64(nil), features...)))
	return out.AtVec(0), nil
}

func confidence(p float64) float64 {
	c := 2 * (p - 0.5)
	if c < 0 {
		c = -c
	}
	if c > 1 {
		c = 1
	}
	return c
}
