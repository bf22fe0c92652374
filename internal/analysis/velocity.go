package analysis

import (
	"time"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Raw metric keys produced by EngagementVelocity.
const (
	MetricAgeHours         = "age_hours"
	MetricInteractions     = "interactions"
	MetricBasicVelocity    = "basic_velocity"
	MetricMomentumVelocity = "momentum_velocity"
	MetricEarlyDetection   = "early_detection_score"
	MetricIsEarlyWindow    = "is_early_window"
	MetricIsViralVelocity  = "is_viral_velocity"
	MetricHistoryPoints    = "history_points"
	MetricViralProbability = "viral_probability"
)

// EarlyThreshold awards Bonus when a post reaches Interactions within Window of creation.
type EarlyThreshold struct {
	Window       time.Duration
	Interactions float64
	Bonus        float64
}

// VelocityConfig tunes EngagementVelocity.
type VelocityConfig struct {
	AgeFloorHours          float64
	MomentumDecay          float64
	ViralVelocityThreshold float64
	VelocityScale          float64
	BasicWeight            float64
	MomentumWeight         float64
	EarlyWindow            time.Duration
	EarlyThresholds        []EarlyThreshold
}

func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		AgeFloorHours:          0.1,
		MomentumDecay:          0.8,
		ViralVelocityThreshold: 1000,
		VelocityScale:          1000,
		BasicWeight:            0.6,
		MomentumWeight:         0.4,
		EarlyWindow:            2 * time.Hour,
		EarlyThresholds: []EarlyThreshold{
			{Window: 30 * time.Minute, Interactions: 100, Bonus: 0.3},
			{Window: 60 * time.Minute, Interactions: 500, Bonus: 0.3},
			{Window: 120 * time.Minute, Interactions: 1000, Bonus: 0.4},
		},
	}
}

// VelocityInput is everything EngagementVelocity looks at.
type VelocityInput struct {
	Interactions float64
	CreatedAt    time.Time
	Now          time.Time
	History      []types.InteractionPoint
}

// VelocityInputFrom extracts the velocity input from a defaulted post.
func VelocityInputFrom(p types.Post) VelocityInput {
	return VelocityInput{
		Interactions: p.Interactions,
		CreatedAt:    p.CreatedAt,
		Now:          p.Now,
		History:      p.InteractionHistory,
	}
}

// EngagementVelocity scores how fast a post is accumulating interactions.
type EngagementVelocity struct {
	cfg VelocityConfig
}

func NewEngagementVelocity(cfg VelocityConfig) *EngagementVelocity {
	return &EngagementVelocity{cfg: cfg}
}

func (v *EngagementVelocity) Name() string { return ComponentVelocity }

func (v *EngagementVelocity) Score(in VelocityInput) ScoreComponent {
	rawAge := in.Now.Sub(in.CreatedAt).Hours()
	if rawAge < 0 {
		rawAge = 0
	}
	age := rawAge
	if age < v.cfg.AgeFloorHours {
		age = v.cfg.AgeFloorHours
	}

	basic := in.Interactions / age
	momentum := v.momentum(in.History)

	early := 0.0
	inEarlyWindow := rawAge <= v.cfg.EarlyWindow.Hours()
	if inEarlyWindow {
		early = v.earlyDetection(in, rawAge)
	}

	scale := v.cfg.VelocityScale
	if scale <= 0 {
		scale = 1
	}
	evidence := v.cfg.BasicWeight*clamp01(basic/scale) + v.cfg.MomentumWeight*clamp01(momentum/scale)
	probability := calibrated(evidence)

	return ScoreComponent{
		Name: ComponentVelocity,
		RawMetrics: map[string]float64{
			MetricAgeHours:         rawAge,
			MetricInteractions:     in.Interactions,
			MetricBasicVelocity:    basic,
			MetricMomentumVelocity: momentum,
			MetricEarlyDetection:   early,
			MetricIsEarlyWindow:    boolMetric(inEarlyWindow),
			MetricIsViralVelocity:  boolMetric(basic >= v.cfg.ViralVelocityThreshold),
			MetricHistoryPoints:    float64(len(in.History)),
			MetricViralProbability: probability,
		},
		NormalizedScore: clamp01(probability),
	}
}

// momentum sums the interaction rate of each consecutive history interval,
// weighting the most recent interval fully and decaying older ones.
func (v *EngagementVelocity) momentum(history []types.InteractionPoint) float64 {
	if len(history) < 2 {
		return 0
	}
	rates := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		dh := history[i].Timestamp.Sub(history[i-1].Timestamp).Hours()
		if dh <= 0 {
			continue
		}
		rates = append(rates, (history[i].Count-history[i-1].Count)/dh)
	}
	weights := recencyWeights(len(rates), v.cfg.MomentumDecay)
	total := 0.0
	for i, r := range rates {
		total += r * weights[i]
	}
	return total
}

func (v *EngagementVelocity) earlyDetection(in VelocityInput, ageHours float64) float64 {
	score := 0.0
	for _, th := range v.cfg.EarlyThresholds {
		if reachedWithin(in, ageHours, th.Window) >= th.Interactions {
			score += th.Bonus
		}
	}
	return clamp01(score)
}

// reachedWithin returns the highest interaction count observed no later than
// window after creation.
func reachedWithin(in VelocityInput, ageHours float64, window time.Duration) float64 {
	best := 0.0
	for _, p := range in.History {
		if p.Timestamp.Sub(in.CreatedAt) <= window && p.Count > best {
			best = p.Count
		}
	}
	if ageHours <= window.Hours() && in.Interactions > best {
		best = in.Interactions
	}
	return best
}
