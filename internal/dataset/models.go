package dataset

import "time"

const (
	stmtInsertSample = "insert_sample"
	stmtInsertRun    = "insert_run"
)

// RunRecord is a completed training run as stored.
type RunRecord struct {
	ID                 string    `json:"id"`
	Architecture       string    `json:"architecture"`
	Epochs             int       `json:"epochs"`
	StoppedEarly       bool      `json:"stopped_early"`
	FinalLoss          float64   `json:"final_loss"`
	TrainAccuracy      float64   `json:"train_accuracy"`
	ValidationAccuracy *float64  `json:"validation_accuracy,omitempty"`
	TrainingSamples    int       `json:"training_samples"`
	SnapshotPath       string    `json:"snapshot_path,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// SizeCount is the number of stored samples of one feature vector length.
type SizeCount struct {
	FeatureCount int `json:"feature_count"`
	Samples      int `json:"samples"`
}
