package neural

import "sync/atomic"

// Snapshot is a frozen copy of a trained network. Nothing mutates it after
// creation, so any number of goroutines may predict with it concurrently.
type Snapshot struct {
	arch        Architecture
	state       *ModelState
	history     []HistoryEntry
	performance *Performance
}

func (s *Snapshot) Architecture() Architecture { return s.arch }

func (s *Snapshot) InputSize() int { return s.arch.InputSize }

// RunID identifies the training run that produced the weights, if any.
func (s *Snapshot) RunID() string {
	if s.performance == nil {
		return ""
	}
	return s.performance.RunID
}

func (s *Snapshot) Performance() *Performance {
	if s.performance == nil {
		return nil
	}
	p := *s.performance
	return &p
}

func (s *Snapshot) History() []HistoryEntry {
	return append([]HistoryEntry(nil), s.history...)
}

func (s *Snapshot) Predict(features []float64) (float64, error) {
	return predict(s.state, s.arch, features)
}

// PredictWithConfidence returns the prediction and min(1, 2|p-0.5|).
func (s *Snapshot) PredictWithConfidence(features []float64) (float64, float64, error) {
	p, err := s.Predict(features)
	if err != nil {
		return 0, 0, err
	}
	return p, confidence(p), nil
}

// Holder publishes the snapshot used for serving. Swapping is lock-free;
// in-flight predictions keep the snapshot they already loaded.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s != nil {
		h.current.Store(s)
	}
	return h
}

// Load returns the current snapshot, or nil when no model is available.
func (h *Holder) Load() *Snapshot {
	if h == nil {
		return nil
	}
	return h.current.Load()
}

// Swap installs s and returns the previous snapshot.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.current.Swap(s)
}
