package hybrid

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
)

// DefaultProfile is the ensemble weight profile used when none is configured.
const DefaultProfile = "default"

const weightTolerance = 1e-6

var profilePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SignalWeights assigns a share of the blend to each signal.
type SignalWeights struct {
	RuleBased float64 `json:"rule_based"`
	ML        float64 `json:"ml"`
	External  float64 `json:"external"`
}

func (w SignalWeights) sum() float64 { return w.RuleBased + w.ML + w.External }

// EnsembleWeights holds one configuration per number of available signals.
type EnsembleWeights struct {
	TwoSignal   SignalWeights `json:"two_signal"`
	ThreeSignal SignalWeights `json:"three_signal"`
}

func DefaultEnsembleWeights() EnsembleWeights {
	return EnsembleWeights{
		TwoSignal:   SignalWeights{RuleBased: 0.40, ML: 0.60},
		ThreeSignal: SignalWeights{RuleBased: 0.30, ML: 0.45, External: 0.25},
	}
}

// Validate checks that every configuration is non-negative and sums to 1.
func (e EnsembleWeights) Validate() error {
	if e.TwoSignal.External != 0 {
		return errors.New("two_signal weights must not assign an external share")
	}
	for name, w := range map[string]SignalWeights{"two_signal": e.TwoSignal, "three_signal": e.ThreeSignal} {
		if w.RuleBased < 0 || w.ML < 0 || w.External < 0 {
			return fmt.Errorf("%s weights must be non-negative", name)
		}
		if math.Abs(w.sum()-1) > weightTolerance {
			return fmt.Errorf("%s weights sum to %.6f, want 1", name, w.sum())
		}
	}
	return nil
}

// WeightStore persists named ensemble weight profiles as JSON under dataDir/ensemble.
type WeightStore struct {
	dataDir string
}

func NewWeightStore(dataDir string) *WeightStore {
	return &WeightStore{dataDir: dataDir}
}

func (s *WeightStore) path(profile string) (string, error) {
	if !profilePattern.MatchString(profile) {
		return "", fmt.Errorf("invalid profile name %q", profile)
	}
	return filepath.Join(s.dataDir, "ensemble", profile+".json"), nil
}

// Load returns the named profile, falling back to the defaults when no file exists.
func (s *WeightStore) Load(profile string) (EnsembleWeights, error) {
	path, err := s.path(profile)
	if err != nil {
		return EnsembleWeights{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultEnsembleWeights(), nil
	}
	if err != nil {
		return EnsembleWeights{}, fmt.Errorf("failed to read ensemble profile: %w", err)
	}

	var w EnsembleWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return EnsembleWeights{}, fmt.Errorf("failed to decode ensemble profile: %w", err)
	}
	if err := w.Validate(); err != nil {
		return EnsembleWeights{}, fmt.Errorf("ensemble profile %s: %w", profile, err)
	}
	return w, nil
}

// Save validates and writes a profile.
func (s *WeightStore) Save(profile string, w EnsembleWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	path, err := s.path(profile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create ensemble directory: %w", err)
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ensemble profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ensemble profile: %w", err)
	}
	return nil
}
