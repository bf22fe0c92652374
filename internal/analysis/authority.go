package analysis

import (
	"math"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Raw metric keys produced by CreatorAuthority.
const (
	MetricFollowerCount       = "follower_count"
	MetricFollowerScore       = "follower_score"
	MetricOptimalRangeBonus   = "optimal_range_bonus"
	MetricIsOptimalRange      = "is_optimal_range"
	MetricEngagementRate      = "engagement_rate"
	MetricEngagementRateScore = "engagement_rate_score"
	MetricViralHistoryScore   = "viral_history_score"
	MetricMaturityScore       = "account_maturity_score"
	MetricCredibilityScore    = "credibility_score"
	MetricConsistencyScore    = "consistency_score"
	MetricPostsPerWeek        = "posts_per_week"
	MetricAuthorityMultiplier = "authority_multiplier"

	LabelAuthorityTier = "authority_tier"
)

// AuthorityTier classifies a creator by absolute follower count.
type AuthorityTier struct {
	Name       string
	MinFollows float64
	Multiplier float64
}

// AuthorityConfig tunes CreatorAuthority.
type AuthorityConfig struct {
	FollowerCeiling      float64
	OptimalMin           float64
	OptimalMax           float64
	OptimalBonus         float64
	LargeAccountFactor   float64
	MaturityPeakDays     float64
	MaturityFloor        float64
	ProfessionalKeywords []string
	Tiers                []AuthorityTier

	FollowerWeight    float64
	EngagementWeight  float64
	ViralWeight       float64
	MaturityWeight    float64
	CredibilityWeight float64
	ConsistencyWeight float64
}

func DefaultAuthorityConfig() AuthorityConfig {
	return AuthorityConfig{
		FollowerCeiling:    10_000_000,
		OptimalMin:         50_000,
		OptimalMax:         100_000,
		OptimalBonus:       0.3,
		LargeAccountFactor: 0.8,
		MaturityPeakDays:   730,
		MaturityFloor:      0.6,
		ProfessionalKeywords: []string{
			"founder", "ceo", "cto", "author", "journalist", "editor", "researcher",
			"phd", "professor", "engineer", "expert", "official", "creator", "analyst",
			"consultant", "speaker", "doctor", "scientist",
		},
		// ordered from the largest threshold down
		Tiers: []AuthorityTier{
			{Name: "mega", MinFollows: 1_000_000, Multiplier: 4.0},
			{Name: "macro", MinFollows: 100_000, Multiplier: 2.5},
			{Name: "mid", MinFollows: 10_000, Multiplier: 1.5},
			{Name: "micro", MinFollows: 1_000, Multiplier: 1.0},
			{Name: "nano", MinFollows: 100, Multiplier: 0.8},
			{Name: "emerging", MinFollows: 0, Multiplier: 0.5},
		},
		FollowerWeight:    0.25,
		EngagementWeight:  0.25,
		ViralWeight:       0.20,
		MaturityWeight:    0.10,
		CredibilityWeight: 0.15,
		ConsistencyWeight: 0.05,
	}
}

// CreatorAuthority scores how much reach and trust the posting account carries.
type CreatorAuthority struct {
	cfg          AuthorityConfig
	professional map[string]struct{}
}

func NewCreatorAuthority(cfg AuthorityConfig) *CreatorAuthority {
	prof := make(map[string]struct{}, len(cfg.ProfessionalKeywords))
	for _, k := range cfg.ProfessionalKeywords {
		prof[k] = struct{}{}
	}
	return &CreatorAuthority{cfg: cfg, professional: prof}
}

func (a *CreatorAuthority) Name() string { return ComponentAuthority }

func (a *CreatorAuthority) Score(c types.CreatorProfile) ScoreComponent {
	followerScore, bonus, optimal := a.followerScore(c.FollowerCount)
	rate, rateScore := a.engagementRate(c)
	viral := a.viralHistory(c.ViralPostsCount)
	maturity := a.maturity(c.AccountAgeDays)
	credibility := a.credibility(c)
	consistency, perWeek := a.consistency(c)
	tier := a.Tier(c.FollowerCount)

	score := a.cfg.FollowerWeight*followerScore +
		a.cfg.EngagementWeight*rateScore +
		a.cfg.ViralWeight*viral +
		a.cfg.MaturityWeight*maturity +
		a.cfg.CredibilityWeight*credibility +
		a.cfg.ConsistencyWeight*consistency

	return ScoreComponent{
		Name: ComponentAuthority,
		RawMetrics: map[string]float64{
			MetricFollowerCount:       c.FollowerCount,
			MetricFollowerScore:       followerScore,
			MetricOptimalRangeBonus:   bonus,
			MetricIsOptimalRange:      boolMetric(optimal),
			MetricEngagementRate:      rate,
			MetricEngagementRateScore: rateScore,
			MetricViralHistoryScore:   viral,
			MetricMaturityScore:       maturity,
			MetricCredibilityScore:    credibility,
			MetricConsistencyScore:    consistency,
			MetricPostsPerWeek:        perWeek,
			MetricAuthorityMultiplier: tier.Multiplier,
		},
		Labels:          map[string]string{LabelAuthorityTier: tier.Name},
		NormalizedScore: clamp01(score),
	}
}

// Tier returns the authority tier for a follower count.
func (a *CreatorAuthority) Tier(followers float64) AuthorityTier {
	for _, t := range a.cfg.Tiers {
		if followers >= t.MinFollows {
			return t
		}
	}
	return AuthorityTier{Name: "emerging", Multiplier: 0.5}
}

func (a *CreatorAuthority) followerScore(followers float64) (score, bonus float64, optimal bool) {
	score = logScale(followers, a.cfg.FollowerCeiling)
	optimal = followers >= a.cfg.OptimalMin && followers <= a.cfg.OptimalMax
	switch {
	case optimal:
		bonus = a.cfg.OptimalBonus
		score += bonus
	case followers > a.cfg.OptimalMax:
		score *= a.cfg.LargeAccountFactor
	}
	return clamp01(score), bonus, optimal
}

func (a *CreatorAuthority) engagementRate(c types.CreatorProfile) (rate, score float64) {
	if c.FollowerCount <= 0 {
		return 0, 0
	}
	rate = c.AvgInteractions / c.FollowerCount
	switch {
	case rate >= 0.10:
		score = 1.0
	case rate >= 0.05:
		score = 0.8
	case rate >= 0.02:
		score = 0.6
	case rate >= 0.01:
		score = 0.4
	default:
		score = rate / 0.01 * 0.4
	}
	return rate, clamp01(score)
}

// viralHistory is 0 with no viral posts and approaches 1 as they accumulate.
func (a *CreatorAuthority) viralHistory(viralPosts float64) float64 {
	if viralPosts <= 0 {
		return 0
	}
	return clamp01(2*sigmoid(0.5*viralPosts) - 1)
}

func (a *CreatorAuthority) maturity(days float64) float64 {
	peak := a.cfg.MaturityPeakDays
	if days <= 0 || peak <= 0 {
		return 0
	}
	if days <= peak {
		return days / peak
	}
	// slow decline after the peak, never below the floor
	return math.Max(a.cfg.MaturityFloor, 1-(days-peak)/(5*peak))
}

func (a *CreatorAuthority) credibility(c types.CreatorProfile) float64 {
	score := 0.0
	if c.Verified {
		score += 0.3
	}
	for _, kw := range c.BioKeywords {
		if _, ok := a.professional[kw]; ok {
			score += 0.2
			break
		}
	}

	ratio := c.FollowerCount
	if c.FollowingCount > 0 {
		ratio = c.FollowerCount / c.FollowingCount
	}
	switch {
	case ratio >= 10:
		score += 0.3
	case ratio >= 2:
		score += 0.2
	}

	if len(c.BioKeywords) >= 3 {
		score += 0.2
	} else {
		score += 0.2 * float64(len(c.BioKeywords)) / 3
	}
	return clamp01(score)
}

func (a *CreatorAuthority) consistency(c types.CreatorProfile) (score, perWeek float64) {
	if len(c.RecentPosts) == 0 {
		return 0, 0
	}
	interactions := make([]float64, len(c.RecentPosts))
	first, last := c.RecentPosts[0].Timestamp, c.RecentPosts[0].Timestamp
	for i, p := range c.RecentPosts {
		interactions[i] = p.Interactions
		if p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}

	weeks := last.Sub(first).Hours() / (24 * 7)
	if weeks < 1 || first.IsZero() {
		weeks = 1
	}
	perWeek = float64(len(c.RecentPosts)) / weeks

	cv := clamp01(coefficientOfVariation(interactions))
	score = 0.7*(1-cv) + 0.3*math.Min(perWeek/7, 1)
	return clamp01(score), perWeek
}
