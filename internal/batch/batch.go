// Package batch fans a list of posts out to a predictor on a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Predictor scores a single post.
type Predictor interface {
	Predict(ctx context.Context, sig types.PostSignal) (analysis.PredictionResult, error)
}

// Item is the outcome for one input post. Exactly one of Result and Error is set.
type Item struct {
	Index  int                        `json:"index"`
	Result *analysis.PredictionResult `json:"result,omitempty"`
	Error  *apperrors.ErrorResponse   `json:"error,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Mean       float64        `json:"mean_probability"`
	Categories map[string]int `json:"categories"`
	Duration   time.Duration  `json:"duration_ns"`
}

// Response is the full batch outcome, in input order.
type Response struct {
	Items   []Item  `json:"items"`
	Summary Summary `json:"summary"`
}

type Runner struct {
	predictor   Predictor
	concurrency int
	logger      *slog.Logger
}

func NewRunner(p Predictor, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{predictor: p, concurrency: concurrency, logger: logger}
}

// Run predicts every post. A failed post does not fail the batch; only an
// empty or oversized request does.
func (r *Runner) Run(ctx context.Context, posts []types.PostSignal) (*Response, error) {
	if len(posts) == 0 {
		return nil, apperrors.NewValidationError("batch must contain at least one post")
	}
	if len(posts) > types.MaxBatchSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("batch has %d posts, limit is %d", len(posts), types.MaxBatchSize))
	}

	started := time.Now()
	items := make([]Item, len(posts))

	pool := pond.NewPool(min(r.concurrency, len(posts)))
	for i, sig := range posts {
		pool.Submit(func() {
			items[i] = r.predictOne(ctx, i, sig)
		})
	}
	pool.StopAndWait()

	resp := &Response{Items: items, Summary: summarize(items)}
	resp.Summary.Duration = time.Since(started)

	r.logger.Info("Batch prediction complete",
		"total", resp.Summary.Total,
		"failed", resp.Summary.Failed,
		"duration", resp.Summary.Duration)
	return resp, nil
}

func (r *Runner) predictOne(ctx context.Context, i int, sig types.PostSignal) (item Item) {
	item.Index = i
	defer func() {
		if rec := recover(); rec != nil {
			appErr := apperrors.NewInternalError(fmt.Sprintf("prediction panicked: %v", rec), nil)
			resp := appErr.Response()
			item.Result, item.Error = nil, &resp
		}
	}()

	res, err := r.predictor.Predict(ctx, sig)
	if err != nil {
		r.logger.Warn("Batch item failed", "index", i, "error", err)
		resp := apperrors.ToAppError(err).Response()
		item.Error = &resp
		return item
	}
	item.Result = &res
	return item
}

func summarize(items []Item) Summary {
	s := Summary{Total: len(items), Categories: make(map[string]int)}
	total := 0.0
	for _, it := range items {
		if it.Result == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		total += it.Result.ViralProbability
		s.Categories[string(it.Result.Category)]++
	}
	if s.Succeeded > 0 {
		s.Mean = total / float64(s.Succeeded)
	}
	return s
}
