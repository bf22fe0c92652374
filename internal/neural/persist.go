package neural

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

// snapshotFile is the on-disk model format.
type snapshotFile struct {
	Architecture Architecture   `json:"architecture"`
	WeightsIH    [][]float64    `json:"weights_input_hidden"`
	BiasH        []float64      `json:"bias_hidden"`
	WeightsHO    [][]float64    `json:"weights_hidden_output"`
	BiasO        []float64      `json:"bias_output"`
	Performance  *Performance   `json:"performance,omitempty"`
	History      []HistoryEntry `json:"training_history"`
	SavedAt      time.Time      `json:"saved_at"`
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}

func vec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Save writes the snapshot as JSON. The file is replaced atomically so a
// concurrent Load never sees a partial write.
func (s *Snapshot) Save(path string) error {
	file := snapshotFile{
		Architecture: s.arch,
		WeightsIH:    rows(s.state.W1),
		BiasH:        vec(s.state.B1),
		WeightsHO:    rows(s.state.W2),
		BiasO:        vec(s.state.B2),
		Performance:  s.performance,
		History:      s.history,
		SavedAt:      time.Now().UTC(),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return apperrors.NewInternalError("failed to encode model snapshot", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewInternalError("failed to create model directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return apperrors.NewInternalError("failed to create temporary model file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewInternalError("failed to write model snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewInternalError("failed to write model snapshot", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.NewInternalError("failed to publish model snapshot", err)
	}
	return nil
}

// Load reads a snapshot written by Save. An absent file, undecodable content,
// or any matrix whose shape disagrees with the stored architecture is a model error.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewModelError(fmt.Sprintf("model snapshot %s not found", path), err)
		}
		return nil, apperrors.NewModelError("failed to read model snapshot", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewModelError("malformed model snapshot", err)
	}
	if err := file.validate(); err != nil {
		return nil, apperrors.NewModelError("model snapshot does not match its architecture", err)
	}

	arch := file.Architecture
	state := &ModelState{
		W1: mat.NewDense(arch.HiddenSize, arch.InputSize, flatten(file.WeightsIH)),
		B1: mat.NewVecDense(arch.HiddenSize, append([]float64(nil), file.BiasH...)),
		W2: mat.NewDense(arch.OutputSize, arch.HiddenSize, flatten(file.WeightsHO)),
		B2: mat.NewVecDense(arch.OutputSize, append([]float64(nil), file.BiasO...)),
	}
	return &Snapshot{
		arch:        arch,
		state:       state,
		history:     file.History,
		performance: file.Performance,
	}, nil
}

func (f snapshotFile) validate() error {
	a := f.Architecture
	if err := a.validate(); err != nil {
		return err
	}
	if err := checkMatrix("weights_input_hidden", f.WeightsIH, a.HiddenSize, a.InputSize); err != nil {
		return err
	}
	if err := checkMatrix("weights_hidden_output", f.WeightsHO, a.OutputSize, a.HiddenSize); err != nil {
		return err
	}
	if len(f.BiasH) != a.HiddenSize {
		return fmt.Errorf("bias_hidden has %d values, want %d", len(f.BiasH), a.HiddenSize)
	}
	if len(f.BiasO) != a.OutputSize {
		return fmt.Errorf("bias_output has %d values, want %d", len(f.BiasO), a.OutputSize)
	}
	return nil
}

func checkMatrix(name string, m [][]float64, r, c int) error {
	if len(m) != r {
		return fmt.Errorf("%s has %d rows, want %d", name, len(m), r)
	}
	for i, row := range m {
		if len(row) != c {
			return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), c)
		}
	}
	return nil
}

func flatten(m [][]float64) []float64 {
	var out []float64
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
