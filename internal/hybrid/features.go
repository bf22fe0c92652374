package hybrid

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Supported feature vector lengths. Order and length are part of the model
// contract; changing either invalidates every saved snapshot.
const (
	BaseFeatureCount     = 12
	ExtendedFeatureCount = 16
)

// Sentiment sub-score keys folded into the extended feature vector.
const (
	SubScoreVirality  = "virality"
	SubScoreEmotion   = "emotion"
	SubScoreRelevance = "relevance"
)

var baseFeatureNames = []string{
	"velocity_score",
	"authority_score",
	"content_score",
	"timing_score",
	"engagement_rate_score",
	"viral_history_score",
	"emotional_intensity",
	"specificity_score",
	"structural_score",
	"log_followers",
	"post_age",
	"log_interactions",
}

var extendedFeatureNames = []string{
	"external_score",
	"external_virality",
	"external_emotion",
	"external_relevance",
}

// neutralExternal fills the external slots of an extended vector when no sentiment is available.
const neutralExternal = 0.5

// FeatureNames returns the ordered names for a vector of the given size, or nil if unsupported.
func FeatureNames(size int) []string {
	switch size {
	case BaseFeatureCount:
		return append([]string(nil), baseFeatureNames...)
	case ExtendedFeatureCount:
		return append(append([]string(nil), baseFeatureNames...), extendedFeatureNames...)
	default:
		return nil
	}
}

// BuildFeatures assembles the model input from component scores and post metadata.
// Every entry is clamped to [0,1].
func BuildFeatures(post types.Post, comps map[string]analysis.ScoreComponent, sentiment *SentimentScore, size int) ([]float64, error) {
	if size != BaseFeatureCount && size != ExtendedFeatureCount {
		return nil, fmt.Errorf("unsupported feature vector size %d", size)
	}

	velocity := comps[analysis.ComponentVelocity]
	authority := comps[analysis.ComponentAuthority]
	content := comps[analysis.ComponentContent]
	timing := comps[analysis.ComponentTiming]

	f := make([]float64, 0, size)
	f = append(f,
		velocity.NormalizedScore,
		authority.NormalizedScore,
		content.NormalizedScore,
		timing.NormalizedScore,
		authority.Metric(analysis.MetricEngagementRateScore),
		authority.Metric(analysis.MetricViralHistoryScore),
		content.Metric(analysis.MetricEmotionalIntensity),
		content.Metric(analysis.MetricSpecificityScore),
		content.Metric(analysis.MetricStructuralScore),
		logNorm(post.Creator.FollowerCount, 7),
		math.Min(math.Max(post.AgeHours(), 0)/48, 1),
		logNorm(post.Interactions, 6),
	)

	if size == ExtendedFeatureCount {
		if sentiment == nil {
			f = append(f, neutralExternal, neutralExternal, neutralExternal, neutralExternal)
		} else {
			f = append(f,
				sentiment.Score/100,
				sentiment.SubScores[SubScoreVirality]/100,
				sentiment.SubScores[SubScoreEmotion]/100,
				sentiment.SubScores[SubScoreRelevance]/100,
			)
		}
	}

	for i, v := range f {
		f[i] = clamp01(v)
	}
	return f, nil
}

// logNorm maps v to log10(v+1)/decades.
func logNorm(v, decades float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log10(v+1) / decades
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
