package analysis

import (
	"math"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Boost names recorded in Metadata.AppliedBoosts.
const (
	BoostOptimalRange  = "optimal_follower_range"
	BoostOptimalTiming = "optimal_timing"
	BoostViralVelocity = "viral_velocity"
)

// ComposerConfig tunes how component scores become one probability.
type ComposerConfig struct {
	VelocityWeight  float64
	AuthorityWeight float64
	ContentWeight   float64
	TimingWeight    float64

	OptimalRangeBoost  float64
	OptimalTimingBoost float64
	ViralVelocityBoost float64
	ProbabilityCap     float64

	BaseInteractions float64
	LowFactor        float64
	HighFactor       float64

	BaseConfidence float64
	WindowCount    int
}

func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		VelocityWeight:     0.30,
		AuthorityWeight:    0.25,
		ContentWeight:      0.25,
		TimingWeight:       0.20,
		OptimalRangeBoost:  1.2,
		OptimalTimingBoost: 1.15,
		ViralVelocityBoost: 1.10,
		ProbabilityCap:     1.0,
		BaseInteractions:   1000,
		LowFactor:          0.7,
		HighFactor:         1.5,
		BaseConfidence:     0.5,
		WindowCount:        3,
	}
}

// Config bundles every scorer and composer setting.
type Config struct {
	Velocity  VelocityConfig
	Authority AuthorityConfig
	Content   ContentConfig
	Timing    TimingConfig
	Composer  ComposerConfig
}

func DefaultConfig() Config {
	return Config{
		Velocity:  DefaultVelocityConfig(),
		Authority: DefaultAuthorityConfig(),
		Content:   DefaultContentConfig(),
		Timing:    DefaultTimingConfig(),
		Composer:  DefaultComposerConfig(),
	}
}

// Composer runs the four scorers and folds their output into a rule-based PredictionResult.
// It holds no mutable state and is safe for concurrent use.
type Composer struct {
	cfg       ComposerConfig
	velocity  Scorer[VelocityInput]
	authority Scorer[types.CreatorProfile]
	content   Scorer[ContentInput]
	timing    *TimingOptimizer
}

func NewComposer(cfg Config) *Composer {
	return &Composer{
		cfg:       cfg.Composer,
		velocity:  NewEngagementVelocity(cfg.Velocity),
		authority: NewCreatorAuthority(cfg.Authority),
		content:   NewContentAnalyzer(cfg.Content),
		timing:    NewTimingOptimizer(cfg.Timing),
	}
}

// Timing exposes the composer's timing optimizer for window lookups.
func (c *Composer) Timing() *TimingOptimizer { return c.timing }

// Components runs every scorer against a defaulted post.
func (c *Composer) Components(p types.Post) map[string]ScoreComponent {
	return map[string]ScoreComponent{
		ComponentVelocity:  c.velocity.Score(VelocityInputFrom(p)),
		ComponentAuthority: c.authority.Score(p.Creator),
		ComponentContent:   c.content.Score(ContentInputFrom(p)),
		ComponentTiming:    c.timing.Score(TimingInputFrom(p)),
	}
}

// Predict scores a defaulted post. It never fails: sparse input only lowers scores.
func (c *Composer) Predict(p types.Post) PredictionResult {
	return c.Compose(p, c.Components(p))
}

// Compose builds the rule-based result from already computed components.
func (c *Composer) Compose(p types.Post, comps map[string]ScoreComponent) PredictionResult {
	velocity := comps[ComponentVelocity]
	authority := comps[ComponentAuthority]
	content := comps[ComponentContent]
	timing := comps[ComponentTiming]

	base := c.BaseProbability(comps)
	probability, boosts := c.applyBoosts(base, comps)

	return PredictionResult{
		ViralProbability:   probability,
		Category:           CategoryFor(probability),
		ConfidenceScore:    c.confidence(p, comps),
		ComponentScores:    comps,
		ExpectedEngagement: c.expectedEngagement(comps),
		Recommendations:    recommendationsFor(p, velocity, authority, content, timing),
		Insights:           insightsFor(probability, velocity, authority, content, timing),
		PredictionMethod:   MethodRuleBased,
		Metadata: Metadata{
			PredictionID:    uuid.NewString(),
			GeneratedAt:     p.Now,
			BaseProbability: base,
			AppliedBoosts:   boosts,
			PostAgeHours:    p.AgeHours(),
			OptimalWindows:  c.timing.OptimalWindows(p.Now, 0, c.cfg.WindowCount, p.TargetTimezone),
		},
	}
}

// BaseProbability is the weighted sum of component scores before boosts.
func (c *Composer) BaseProbability(comps map[string]ScoreComponent) float64 {
	timingTerm := math.Min(comps[ComponentTiming].Metric(MetricCurrentMultiplier)/2, 1)
	return clamp01(c.cfg.VelocityWeight*clamp01(comps[ComponentVelocity].NormalizedScore) +
		c.cfg.AuthorityWeight*clamp01(comps[ComponentAuthority].NormalizedScore) +
		c.cfg.ContentWeight*clamp01(comps[ComponentContent].NormalizedScore) +
		c.cfg.TimingWeight*clamp01(timingTerm))
}

func (c *Composer) applyBoosts(base float64, comps map[string]ScoreComponent) (float64, []string) {
	p := base
	var applied []string
	if comps[ComponentAuthority].Flag(MetricIsOptimalRange) {
		p *= c.cfg.OptimalRangeBoost
		applied = append(applied, BoostOptimalRange)
	}
	if comps[ComponentTiming].Flag(MetricIsOptimalTime) {
		p *= c.cfg.OptimalTimingBoost
		applied = append(applied, BoostOptimalTiming)
	}
	if comps[ComponentVelocity].Flag(MetricIsViralVelocity) {
		p *= c.cfg.ViralVelocityBoost
		applied = append(applied, BoostViralVelocity)
	}
	return clip(p, 0, c.cfg.ProbabilityCap), applied
}

func (c *Composer) confidence(p types.Post, comps map[string]ScoreComponent) float64 {
	conf := c.cfg.BaseConfidence
	if p.Creator.AccountAgeDays >= 365 {
		conf += 0.1
	}
	if len(p.InteractionHistory) >= 3 {
		conf += 0.1
	}
	if len(p.Creator.RecentPosts) >= 5 {
		conf += 0.1
	}
	if p.Creator.FollowerCount > 0 && p.Interactions > 0 {
		conf += 0.05
	}
	for _, comp := range comps {
		if comp.NormalizedScore >= 0.8 {
			conf += 0.05
		}
	}
	return clamp01(conf)
}

func (c *Composer) expectedEngagement(comps map[string]ScoreComponent) ExpectedEngagement {
	authorityMult := comps[ComponentAuthority].Metric(MetricAuthorityMultiplier)
	if authorityMult == 0 {
		authorityMult = 1
	}
	timingMult := comps[ComponentTiming].Metric(MetricCurrentMultiplier)
	if timingMult == 0 {
		timingMult = 1
	}
	expected := c.cfg.BaseInteractions *
		authorityMult *
		timingMult *
		(1 + comps[ComponentContent].NormalizedScore) *
		(1 + comps[ComponentVelocity].NormalizedScore)
	return ExpectedEngagement{
		Low:      math.Round(expected * c.cfg.LowFactor),
		Expected: math.Round(expected),
		High:     math.Round(expected * c.cfg.HighFactor),
	}
}
