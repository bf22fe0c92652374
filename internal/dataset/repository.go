package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
)

// Repository reads and writes training data.
type Repository struct {
	db  *DB
	now func() time.Time
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// ValidateSample checks a sample against the feature vector contract.
func ValidateSample(s neural.Sample) error {
	if hybrid.FeatureNames(len(s.Features)) == nil {
		return fmt.Errorf("sample has %d features, want %d or %d",
			len(s.Features), hybrid.BaseFeatureCount, hybrid.ExtendedFeatureCount)
	}
	for i, f := range s.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("feature %d is not finite", i)
		}
	}
	if s.Label != 0 && s.Label != 1 {
		return fmt.Errorf("label must be 0 or 1, got %d", s.Label)
	}
	if math.IsNaN(s.TargetProbability) || s.TargetProbability < 0 || s.TargetProbability > 1 {
		return fmt.Errorf("target probability %v outside [0,1]", s.TargetProbability)
	}
	return nil
}

// Insert stores samples in one transaction. Nothing is written if any sample is invalid.
func (r *Repository) Insert(ctx context.Context, samples []neural.Sample, source string) (int, error) {
	for i, s := range samples {
		if err := ValidateSample(s); err != nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("sample %d is invalid", i), err.Error())
		}
	}
	if len(samples) == 0 {
		return 0, nil
	}

	stmt, err := r.db.statement(stmtInsertSample)
	if err != nil {
		return 0, apperrors.NewInternalError("dataset not initialized", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	txStmt := tx.StmtContext(ctx, stmt)
	now := r.now().UTC()
	for _, s := range samples {
		features, err := json.Marshal(s.Features)
		if err != nil {
			return 0, apperrors.NewInternalError("failed to encode features", err)
		}
		if _, err := txStmt.ExecContext(ctx, uuid.NewString(), len(s.Features), string(features),
			s.Label, s.TargetProbability, source, now); err != nil {
			return 0, apperrors.NewInternalError("failed to insert sample", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewInternalError("failed to commit samples", err)
	}
	return len(samples), nil
}

// ImportJSON reads a JSON array of samples and stores them under source.
func (r *Repository) ImportJSON(ctx context.Context, in io.Reader, source string) (int, error) {
	var samples []neural.Sample
	if err := json.NewDecoder(in).Decode(&samples); err != nil {
		return 0, apperrors.NewValidationError("malformed sample file", err.Error())
	}
	return r.Insert(ctx, samples, source)
}

// Samples returns every stored sample with the given feature count, oldest first.
func (r *Repository) Samples(ctx context.Context, featureCount int) ([]neural.Sample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT features, label, target_probability
		FROM training_samples
		WHERE feature_count = ?
		ORDER BY created_at ASC, rowid ASC
	`, featureCount)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query samples", err)
	}
	defer rows.Close()

	var out []neural.Sample
	for rows.Next() {
		var (
			raw string
			s   neural.Sample
		)
		if err := rows.Scan(&raw, &s.Label, &s.TargetProbability); err != nil {
			return nil, apperrors.NewInternalError("failed to scan sample", err)
		}
		if err := json.Unmarshal([]byte(raw), &s.Features); err != nil {
			return nil, apperrors.NewInternalError("stored sample has malformed features", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to read samples", err)
	}
	return out, nil
}

// Counts reports how many samples exist per feature vector length.
func (r *Repository) Counts(ctx context.Context) ([]SizeCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT feature_count, COUNT(*) FROM training_samples
		GROUP BY feature_count ORDER BY feature_count
	`)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to count samples", err)
	}
	defer rows.Close()

	var out []SizeCount
	for rows.Next() {
		var c SizeCount
		if err := rows.Scan(&c.FeatureCount, &c.Samples); err != nil {
			return nil, apperrors.NewInternalError("failed to scan sample count", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSource removes every sample imported under source.
func (r *Repository) DeleteSource(ctx context.Context, source string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM training_samples WHERE source = ?`, source)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to delete samples", err)
	}
	return res.RowsAffected()
}

// RecordRun stores the outcome of a training run.
func (r *Repository) RecordRun(ctx context.Context, run *neural.TrainingRun, arch neural.Architecture, snapshotPath string) error {
	stmt, err := r.db.statement(stmtInsertRun)
	if err != nil {
		return apperrors.NewInternalError("dataset not initialized", err)
	}

	var validation sql.NullFloat64
	if v := run.Performance.Validation; v != nil {
		validation = sql.NullFloat64{Float64: v.Accuracy, Valid: true}
	}
	_, err = stmt.ExecContext(ctx,
		run.ID, arch.String(), run.Epochs, run.StoppedEarly, run.FinalLoss,
		run.Performance.Training.Accuracy, validation, run.Performance.TrainingSamples,
		snapshotPath, r.now().UTC())
	if err != nil {
		return apperrors.NewInternalError("failed to record training run", err)
	}
	return nil
}

// Runs lists the most recent training runs, newest first.
func (r *Repository) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, architecture, epochs, stopped_early, final_loss, train_accuracy,
			validation_accuracy, training_samples, COALESCE(snapshot_path, ''), created_at
		FROM training_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query training runs", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			validation sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.Architecture, &rec.Epochs, &rec.StoppedEarly, &rec.FinalLoss,
			&rec.TrainAccuracy, &validation, &rec.TrainingSamples, &rec.SnapshotPath, &rec.CreatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan training run", err)
		}
		if validation.Valid {
			v := validation.Float64
			rec.ValidationAccuracy = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
