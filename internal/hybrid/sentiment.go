package hybrid

import (
	"context"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// SentimentScore is the external content scorer's verdict on a post.
// Score and SubScores are on a 0-100 scale; Confidence is in [0,1].
type SentimentScore struct {
	Score       float64            `json:"score"`
	SubScores   map[string]float64 `json:"sub_scores,omitempty"`
	Confidence  float64            `json:"confidence"`
	Suggestions []string           `json:"suggestions,omitempty"`
}

// SentimentProvider is the optional third signal of the ensemble. Failures are
// tolerated: the combiner falls back to the remaining signals.
type SentimentProvider interface {
	Analyze(ctx context.Context, post types.Post) (*SentimentScore, error)
}
