package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Breakdown weight keys.
const (
	SignalRuleBased = "rule_based"
	SignalML        = "ml"
	SignalExternal  = "external"
)

// Config tunes the Combiner.
type Config struct {
	ProbabilityCap       float64
	AgreementBoost       float64
	TwoSignalAgreement   float64
	ThreeSignalAgreement float64
	ExtremenessBonus     float64
	MLHighConfidence     float64
	MLHighProbability    float64
	MLLowProbability     float64
	SentimentTimeout     time.Duration
	MaxTextLength        int
}

func DefaultConfig() Config {
	return Config{
		ProbabilityCap:       0.85,
		AgreementBoost:       0.1,
		TwoSignalAgreement:   0.15,
		ThreeSignalAgreement: 0.20,
		ExtremenessBonus:     0.2,
		MLHighConfidence:     0.8,
		MLHighProbability:    0.8,
		MLLowProbability:     0.3,
		SentimentTimeout:     5 * time.Second,
		MaxTextLength:        10000,
	}
}

// Combiner blends the rule-based composer, the neural model and an optional
// external sentiment signal. It is safe for concurrent use; the model is read
// through a Holder so snapshots can be swapped while serving.
type Combiner struct {
	cfg       Config
	weights   EnsembleWeights
	composer  *analysis.Composer
	model     *neural.Holder
	sentiment SentimentProvider
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Combiner.
type Option func(*Combiner)

func WithSentiment(p SentimentProvider) Option { return func(c *Combiner) { c.sentiment = p } }

func WithLogger(l *slog.Logger) Option { return func(c *Combiner) { c.logger = l } }

func WithClock(now func() time.Time) Option { return func(c *Combiner) { c.now = now } }

// WithWeights overrides the ensemble weights. NewCombiner falls back to the
// defaults when w fails Validate.
func WithWeights(w EnsembleWeights) Option { return func(c *Combiner) { c.weights = w } }

func NewCombiner(cfg Config, composer *analysis.Composer, model *neural.Holder, opts ...Option) *Combiner {
	c := &Combiner{
		cfg:      cfg,
		weights:  DefaultEnsembleWeights(),
		composer: composer,
		model:    model,
		logger:   slog.Default(),
		now:      time.Now,
	}
	if c.model == nil {
		c.model = neural.NewHolder(nil)
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.weights.Validate(); err != nil {
		c.logger.Warn("Invalid ensemble weights, using defaults", "error", err)
		c.weights = DefaultEnsembleWeights()
	}
	return c
}

// Composer exposes the rule-based composer.
func (c *Combiner) Composer() *analysis.Composer { return c.composer }

// Model returns the snapshot currently in use, or nil.
func (c *Combiner) Model() *neural.Snapshot { return c.model.Load() }

// Swap installs a new snapshot for subsequent predictions and returns the old one.
func (c *Combiner) Swap(s *neural.Snapshot) *neural.Snapshot { return c.model.Swap(s) }

// Predict defaults the signal at the current clock and scores it.
func (c *Combiner) Predict(ctx context.Context, sig types.PostSignal) (analysis.PredictionResult, error) {
	return c.PredictPost(ctx, sig.WithDefaults(c.now()))
}

// PredictPost scores an already defaulted post. Errors are limited to invalid
// input and a context that is already done; model or sentiment trouble only
// degrades the method.
func (c *Combiner) PredictPost(ctx context.Context, post types.Post) (analysis.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return analysis.PredictionResult{}, apperrors.NewTimeoutError("prediction cancelled", err)
	}
	if n := utf8.RuneCountInString(post.Text); c.cfg.MaxTextLength > 0 && n > c.cfg.MaxTextLength {
		return analysis.PredictionResult{}, apperrors.NewValidationError(
			fmt.Sprintf("text has %d characters, limit is %d", n, c.cfg.MaxTextLength))
	}

	snap := c.model.Load()

	var (
		comps     map[string]analysis.ScoreComponent
		sentiment *SentimentScore
	)
	g, gctx := errgroup.WithContext(ctx)
	if snap != nil && c.sentiment != nil {
		g.Go(func() error {
			sentiment = c.fetchSentiment(gctx, post)
			return nil
		})
	}
	g.Go(func() error {
		comps = c.composer.Components(post)
		return nil
	})
	_ = g.Wait()

	rule := c.composer.Compose(post, comps)
	if snap == nil {
		c.logger.Debug("model unavailable, using rule-based prediction")
		return rule, nil
	}

	features, err := BuildFeatures(post, comps, sentiment, snap.InputSize())
	if err != nil {
		c.logger.Warn("model input size unsupported, using rule-based prediction",
			"input_size", snap.InputSize(), "error", err)
		return rule, nil
	}
	mlProb, mlConf, err := snap.PredictWithConfidence(features)
	if err != nil {
		c.logger.Warn("model prediction failed, using rule-based prediction", "error", err)
		return rule, nil
	}

	return c.blend(rule, mlProb, mlConf, sentiment, snap.RunID(), features), nil
}

func (c *Combiner) fetchSentiment(ctx context.Context, post types.Post) *SentimentScore {
	if c.cfg.SentimentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SentimentTimeout)
		defer cancel()
	}
	score, err := c.sentiment.Analyze(ctx, post)
	if err != nil {
		c.logger.Warn("sentiment signal unavailable, continuing without it", "error", err)
		return nil
	}
	if score == nil || math.IsNaN(score.Score) {
		return nil
	}
	return score
}

type signal struct {
	name        string
	probability float64
	confidence  float64
	weight      float64
}

func (c *Combiner) blend(rule analysis.PredictionResult, mlProb, mlConf float64, sentiment *SentimentScore, runID string, features []float64) analysis.PredictionResult {
	signals := []signal{
		{name: SignalRuleBased, probability: rule.ViralProbability, confidence: rule.ConfidenceScore},
		{name: SignalML, probability: mlProb, confidence: mlConf},
	}
	w := c.weights.TwoSignal
	agreementScale := c.cfg.TwoSignalAgreement
	if sentiment != nil {
		signals = append(signals, signal{
			name:        SignalExternal,
			probability: clamp01(sentiment.Score / 100),
			confidence:  clamp01(sentiment.Confidence),
		})
		w = c.weights.ThreeSignal
		agreementScale = c.cfg.ThreeSignalAgreement
	}
	signals[0].weight, signals[1].weight = w.RuleBased, w.ML
	if len(signals) == 3 {
		signals[2].weight = w.External
	}

	weighted := 0.0
	confidences := make([]float64, len(signals))
	probabilities := make([]float64, len(signals))
	weights := make(map[string]float64, len(signals))
	for i, s := range signals {
		weighted += s.weight * s.probability
		confidences[i] = s.confidence
		probabilities[i] = s.probability
		weights[s.name] = s.weight
	}

	agreement := 1 - meanPairwiseDifference(probabilities)
	boost := 1 + c.cfg.AgreementBoost*agreement
	hybrid := clamp01(weighted * boost)
	final := math.Min(hybrid, c.cfg.ProbabilityCap)

	confidence := mean(confidences) + agreement*agreementScale + c.cfg.ExtremenessBonus*math.Abs(hybrid-0.5)

	out := rule
	out.ViralProbability = final
	out.Category = analysis.CategoryFor(final)
	out.ConfidenceScore = math.Min(confidence, 1)
	out.PredictionMethod = analysis.MethodHybrid
	out.Recommendations = c.mergeRecommendations(rule.Recommendations, mlProb, mlConf, sentiment)
	ruleInsights := rule.Insights
	if len(ruleInsights) > 0 && ruleInsights[0] == analysis.HeadlineInsight(rule.ViralProbability) {
		ruleInsights = ruleInsights[1:]
	}
	out.Insights = mergeInsights([]string{analysis.HeadlineInsight(final)}, ruleInsights,
		mlInsights(mlProb, mlConf, sentiment, agreement))
	out.Metadata.ModelRunID = runID
	out.Metadata.FeatureVector = features

	mlP, mlC := mlProb, mlConf
	out.Breakdown = &analysis.ProbabilityBreakdown{
		RuleBased:       rule.ViralProbability,
		MachineLearning: &mlP,
		MLConfidence:    &mlC,
		Weights:         weights,
		WeightedSum:     weighted,
		AgreementBoost:  boost,
	}
	if sentiment != nil {
		ext := signals[2].probability
		out.Breakdown.External = &ext
	}
	return out
}

// meanPairwiseDifference is the mean |a-b| over all unordered pairs.
func meanPairwiseDifference(ps []float64) float64 {
	total, pairs := 0.0, 0
	for i := 0; i < len(ps); i++ {
		for j := i + 1; j < len(ps); j++ {
			total += math.Abs(ps[i] - ps[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
