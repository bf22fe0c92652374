package neural

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

func randomFeatures(rng *rand.Rand, n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = rng.Float64()
	}
	return f
}

// separable labels a sample viral when its first feature is above 0.5.
func separable(n, size int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Sample, n)
	for i := range out {
		f := randomFeatures(rng, size)
		s := Sample{Features: f, TargetProbability: 0.1}
		if f[0] > 0.5 {
			s.Label, s.TargetProbability = 1, 0.9
		}
		out[i] = s
	}
	return out
}

func newTestNetwork(t *testing.T, mutate func(*Config)) *Network {
	t.Helper()
	cfg := DefaultConfig(12)
	if mutate != nil {
		mutate(&cfg)
	}
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	return n
}

func TestNewNetwork_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero inputs", func(c *Config) { c.Architecture.InputSize = 0 }},
		{"zero hidden", func(c *Config) { c.Architecture.HiddenSize = 0 }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(12)
			tt.mutate(&cfg)
			_, err := NewNetwork(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPredict_OutputInOpenUnitInterval(t *testing.T) {
	n := newTestNetwork(t, nil)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		p, err := n.Predict(randomFeatures(rng, 12))
		require.NoError(t, err)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
}

func TestPredict_Deterministic(t *testing.T) {
	n := newTestNetwork(t, nil)
	features := randomFeatures(rand.New(rand.NewSource(3)), 12)

	first, err := n.Predict(features)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		p, err := n.Predict(features)
		require.NoError(t, err)
		assert.Equal(t, first, p)
	}
}

func TestPredict_SameSeedSameWeights(t *testing.T) {
	a := newTestNetwork(t, nil)
	b := newTestNetwork(t, nil)
	features := randomFeatures(rand.New(rand.NewSource(11)), 12)

	pa, _ := a.Predict(features)
	pb, _ := b.Predict(features)
	assert.Equal(t, pa, pb)
}

func TestPredict_DimensionMismatch(t *testing.T) {
	n := newTestNetwork(t, nil)

	_, err := n.Predict(make([]float64, 16))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryModel))

	_, _, err = n.Freeze().PredictWithConfidence(make([]float64, 3))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryModel))
}

func TestPredictWithConfidence(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.75, 0.5},
		{0.25, 0.5},
		{1.0, 1},
		{0.0, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, confidence(tt.p), 1e-12, "p=%v", tt.p)
	}
}

func TestTrain_ReducesLoss(t *testing.T) {
	n := newTestNetwork(t, func(c *Config) {
		c.LearningRate = 0.5
		c.Epochs = 200
		c.TargetLoss = 0
	})
	train, validation := Split(separable(200, 12, 1), 0.2, 1)

	before, err := n.Evaluate(train)
	require.NoError(t, err)

	run, err := n.Train(context.Background(), TrainInput{Train: train, Validation: validation})
	require.NoError(t, err)

	after, err := n.Evaluate(train)
	require.NoError(t, err)
	assert.Less(t, after.MSE, before.MSE)
	assert.Equal(t, 200, run.Epochs)
	assert.False(t, run.StoppedEarly)
	require.NotNil(t, run.Performance.Validation)
	assert.Equal(t, len(validation), run.Performance.Validation.Samples)
	assert.NotEmpty(t, run.ID)
}

func TestTrain_EarlyStopping(t *testing.T) {
	n := newTestNetwork(t, func(c *Config) { c.LearningRate = 0.5 })
	samples := make([]Sample, 50)
	rng := rand.New(rand.NewSource(5))
	for i := range samples {
		samples[i] = Sample{Features: randomFeatures(rng, 12), TargetProbability: 0.5}
	}

	run, err := n.Train(context.Background(), TrainInput{Train: samples})
	require.NoError(t, err)

	assert.True(t, run.StoppedEarly)
	assert.Less(t, run.Epochs, 1000)
	assert.Less(t, run.FinalLoss, 0.01)
	last := run.History[len(run.History)-1]
	assert.Equal(t, run.Epochs, last.Epoch)
	assert.Nil(t, last.ValidationAccuracy)
}

func TestTrain_RecordsHistoryEveryInterval(t *testing.T) {
	n := newTestNetwork(t, func(c *Config) {
		c.Epochs = 30
		c.EvalEvery = 10
		c.TargetLoss = 0
	})
	train, validation := Split(separable(40, 12, 2), 0.25, 2)

	var seen []int
	run, err := n.Train(context.Background(), TrainInput{
		Train:      train,
		Validation: validation,
		Progress:   func(e HistoryEntry) { seen = append(seen, e.Epoch) },
	})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20, 30}, seen)
	require.Len(t, run.History, 3)
	for _, e := range run.History {
		require.NotNil(t, e.ValidationAccuracy)
		assert.Equal(t, run.ID, e.RunID)
	}

	_, err = n.Train(context.Background(), TrainInput{Train: train})
	require.NoError(t, err)
	assert.Len(t, n.History(), 6)
}

func TestTrain_RejectsBadSamples(t *testing.T) {
	n := newTestNetwork(t, nil)

	_, err := n.Train(context.Background(), TrainInput{})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = n.Train(context.Background(), TrainInput{Train: []Sample{{Features: make([]float64, 5)}}})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = n.Train(context.Background(), TrainInput{Train: []Sample{{Features: make([]float64, 12), Label: 2}}})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func TestTrain_Cancelled(t *testing.T) {
	n := newTestNetwork(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := n.Train(ctx, TrainInput{Train: separable(10, 12, 3)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTimeout))
	assert.Zero(t, run.Epochs)
}

func TestSaveLoad_BitIdenticalPredictions(t *testing.T) {
	n := newTestNetwork(t, func(c *Config) { c.Epochs = 20 })
	_, err := n.Train(context.Background(), TrainInput{Train: separable(30, 12, 4)})
	require.NoError(t, err)

	snap := n.Freeze()
	path := filepath.Join(t.TempDir(), "models", "viral.json")
	require.NoError(t, snap.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	features := randomFeatures(rand.New(rand.NewSource(9)), 12)
	want, err := snap.Predict(features)
	require.NoError(t, err)
	got, err := loaded.Predict(features)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, snap.Architecture(), loaded.Architecture())
	assert.Equal(t, snap.RunID(), loaded.RunID())
	assert.Len(t, loaded.History(), len(snap.History()))
	require.NotNil(t, loaded.Performance())
	assert.Equal(t, 20, loaded.Performance().Epochs)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, newTestNetwork(t, nil).Freeze().Save(valid))

	malformed := filepath.Join(dir, "malformed.json")
	require.NoError(t, os.WriteFile(malformed, []byte(`{"architecture":`), 0o644))

	wrongShape := filepath.Join(dir, "shape.json")
	require.NoError(t, os.WriteFile(wrongShape, []byte(`{
		"architecture": {"input_size": 2, "hidden_size": 2, "output_size": 1},
		"weights_input_hidden": [[0.1, 0.2], [0.3]],
		"bias_hidden": [0, 0],
		"weights_hidden_output": [[0.1, 0.2]],
		"bias_output": [0]
	}`), 0o644))

	wrongBias := filepath.Join(dir, "bias.json")
	require.NoError(t, os.WriteFile(wrongBias, []byte(`{
		"architecture": {"input_size": 2, "hidden_size": 2, "output_size": 1},
		"weights_input_hidden": [[0.1, 0.2], [0.3, 0.4]],
		"bias_hidden": [0],
		"weights_hidden_output": [[0.1, 0.2]],
		"bias_output": [0]
	}`), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.json")},
		{"malformed json", malformed},
		{"ragged matrix", wrongShape},
		{"wrong bias length", wrongBias},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(tt.path)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryModel))
		})
	}

	s, err := Load(valid)
	require.NoError(t, err)
	assert.Equal(t, 12, s.InputSize())
}

func TestThaw_ContinuesFromSnapshot(t *testing.T) {
	snap := newTestNetwork(t, nil).Freeze()
	n := Thaw(snap, DefaultConfig(99))

	features := randomFeatures(rand.New(rand.NewSource(10)), 12)
	want, _ := snap.Predict(features)
	got, err := n.Predict(features)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 12, n.Architecture().InputSize)
}

func TestHolder(t *testing.T) {
	h := NewHolder(nil)
	assert.Nil(t, h.Load())

	first := newTestNetwork(t, nil).Freeze()
	assert.Nil(t, h.Swap(first))
	assert.Same(t, first, h.Load())

	second := newTestNetwork(t, func(c *Config) { c.Seed = 2 }).Freeze()
	assert.Same(t, first, h.Swap(second))
	assert.Same(t, second, h.Load())

	var nilHolder *Holder
	assert.Nil(t, nilHolder.Load())
}

func BenchmarkSnapshotPredict(b *testing.B) {
	n, _ := NewNetwork(DefaultConfig(12))
	snap := n.Freeze()
	features := randomFeatures(rand.New(rand.NewSource(1)), 12)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = snap.Predict(features)
	}
}
