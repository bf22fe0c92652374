package analysis

import "time"

// Component names used as keys in PredictionResult.ComponentScores.
const (
	ComponentVelocity  = "engagement_velocity"
	ComponentAuthority = "creator_authority"
	ComponentContent   = "content_analysis"
	ComponentTiming    = "timing"
)

// ScoreComponent is the output of a single feature scorer.
// Treat it as read-only once returned.
type ScoreComponent struct {
	Name            string             `json:"name"`
	RawMetrics      map[string]float64 `json:"raw_metrics"`
	Labels          map[string]string  `json:"labels,omitempty"`
	NormalizedScore float64            `json:"normalized_score"`
}

// Metric returns a raw metric, or 0 when absent.
func (c ScoreComponent) Metric(key string) float64 {
	return c.RawMetrics[key]
}

// Flag reports whether a boolean metric (stored as 0/1) is set.
func (c ScoreComponent) Flag(key string) bool {
	return c.RawMetrics[key] > 0.5
}

// Label returns a string label, or "" when absent.
func (c ScoreComponent) Label(key string) string {
	return c.Labels[key]
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Category is the discrete virality band of a probability.
type Category string

const (
	CategoryMinimal   Category = "minimal"
	CategoryLow       Category = "low"
	CategoryModerate  Category = "moderate"
	CategoryHigh      Category = "high"
	CategoryUltraHigh Category = "ultra_high"
)

// CategoryFor maps a probability onto its band.
func CategoryFor(p float64) Category {
	switch {
	case p >= 0.85:
		return CategoryUltraHigh
	case p >= 0.70:
		return CategoryHigh
	case p >= 0.50:
		return CategoryModerate
	case p >= 0.30:
		return CategoryLow
	default:
		return CategoryMinimal
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is a single actionable suggestion.
type Recommendation struct {
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`
	Text     string   `json:"text"`
	Impact   string   `json:"impact,omitempty"`
}

// ExpectedEngagement is the projected interaction range for a post.
type ExpectedEngagement struct {
	Low      float64 `json:"low"`
	Expected float64 `json:"expected"`
	High     float64 `json:"high"`
}

// PredictionMethod tags how a result was produced.
type PredictionMethod string

const (
	MethodRuleBased PredictionMethod = "rule-based"
	MethodHybrid    PredictionMethod = "hybrid"
)

// ProbabilityBreakdown lists every signal that contributed to a hybrid result.
type ProbabilityBreakdown struct {
	RuleBased       float64            `json:"rule_based"`
	MachineLearning *float64           `json:"machine_learning,omitempty"`
	MLConfidence    *float64           `json:"ml_confidence,omitempty"`
	External        *float64           `json:"external,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	WeightedSum     float64            `json:"weighted_sum"`
	AgreementBoost  float64            `json:"agreement_boost"`
}

// Metadata carries bookkeeping about a prediction.
type Metadata struct {
	PredictionID    string     `json:"prediction_id"`
	GeneratedAt     time.Time  `json:"generated_at"`
	BaseProbability float64    `json:"base_probability"`
	AppliedBoosts   []string   `json:"applied_boosts,omitempty"`
	PostAgeHours    float64    `json:"post_age_hours"`
	OptimalWindows  []TimeSlot `json:"optimal_windows,omitempty"`
	ModelRunID      string     `json:"model_run_id,omitempty"`
	FeatureVector   []float64  `json:"feature_vector,omitempty"`
}

// PredictionResult is the final output of the rule-based composer or the hybrid combiner.
type PredictionResult struct {
	ViralProbability   float64                   `json:"viral_probability"`
	Category           Category                  `json:"category"`
	ConfidenceScore    float64                   `json:"confidence_score"`
	ComponentScores    map[string]ScoreComponent `json:"component_scores"`
	ExpectedEngagement ExpectedEngagement        `json:"expected_engagement"`
	Recommendations    []Recommendation          `json:"recommendations"`
	Insights           []string                  `json:"insights"`
	PredictionMethod   PredictionMethod          `json:"prediction_method"`
	Breakdown          *ProbabilityBreakdown     `json:"breakdown,omitempty"`
	Metadata           Metadata                  `json:"metadata"`
}
