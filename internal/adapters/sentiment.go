// Package adapters holds clients for the services the predictor consults.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// SentimentServiceName identifies the sentiment service in breakers and health reports.
const SentimentServiceName = "sentiment"

const maxErrorBody = 512

// SentimentConfig configures the sentiment HTTP client.
type SentimentConfig struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

func DefaultSentimentConfig(url string) SentimentConfig {
	return SentimentConfig{
		URL:               url,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		Retry:             resilience.FastRetry(),
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 1,
		},
	}
}

// sentimentRequest is the body POSTed to the sentiment service.
type sentimentRequest struct {
	Text         string   `json:"text"`
	Hashtags     []string `json:"hashtags,omitempty"`
	MediaCount   int      `json:"media_count"`
	AudienceType string   `json:"audience_type"`
}

type sentimentResponse struct {
	Score       *float64           `json:"score"`
	SubScores   map[string]float64 `json:"sub_scores"`
	Confidence  *float64           `json:"confidence"`
	Suggestions []string           `json:"suggestions"`
}

// SentimentClient calls an external content scoring service. It is the only
// place in the prediction path with network timeouts.
type SentimentClient struct {
	config  SentimentConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	tracker *resilience.DegradationTracker
	logger  *slog.Logger

	observe func(duration time.Duration, err error)
}

var _ hybrid.SentimentProvider = (*SentimentClient)(nil)

// NewSentimentClient builds a client. breakers and tracker may be nil.
func NewSentimentClient(config SentimentConfig, breakers *resilience.Registry, tracker *resilience.DegradationTracker, logger *slog.Logger) (*SentimentClient, error) {
	if config.URL == "" {
		return nil, apperrors.NewConfigurationError("sentiment URL is required", nil)
	}
	if breakers == nil {
		breakers = resilience.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := max(config.Burst, 1)

	return &SentimentClient{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breakers.GetOrCreate(SentimentServiceName, config.Breaker),
		tracker: tracker,
		logger:  logger,
	}, nil
}

// OnCall registers fn to run after every Analyze with its duration and outcome.
func (c *SentimentClient) OnCall(fn func(duration time.Duration, err error)) { c.observe = fn }

// Analyze scores a post. Every failure is returned as an AppError; the
// combiner treats them all as "signal unavailable".
func (c *SentimentClient) Analyze(ctx context.Context, post types.Post) (*hybrid.SentimentScore, error) {
	started := time.Now()
	body, err := json.Marshal(sentimentRequest{
		Text:         post.Text,
		Hashtags:     post.Hashtags,
		MediaCount:   post.MediaCount,
		AudienceType: post.AudienceType,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode sentiment request", err)
	}

	var score *hybrid.SentimentScore
	err = resilience.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			s, err := c.call(ctx, body)
			if err != nil {
				return err
			}
			score = s
			return nil
		})
	})

	if c.tracker != nil {
		c.tracker.Record(SentimentServiceName, err)
	}
	if c.observe != nil {
		c.observe(time.Since(started), err)
	}
	if err != nil {
		c.logger.Debug("Sentiment call failed", "duration", time.Since(started), "error", err)
		return nil, toAppError(err)
	}
	c.logger.Debug("Sentiment call succeeded", "duration", time.Since(started), "score", score.Score)
	return score, nil
}

func (c *SentimentClient) call(ctx context.Context, body []byte) (*hybrid.SentimentScore, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &resilience.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out sentimentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewValidationError("malformed sentiment response", err.Error())
	}
	return out.toScore()
}

func (r sentimentResponse) toScore() (*hybrid.SentimentScore, error) {
	if r.Score == nil {
		return nil, apperrors.NewValidationError("sentiment response has no score")
	}
	if *r.Score < 0 || *r.Score > 100 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("sentiment score %.2f is outside 0-100", *r.Score))
	}
	confidence := 0.5
	if r.Confidence != nil {
		confidence = min(max(*r.Confidence, 0), 1)
	}
	return &hybrid.SentimentScore{
		Score:       *r.Score,
		SubScores:   r.SubScores,
		Confidence:  confidence,
		Suggestions: r.Suggestions,
	}, nil
}

func toAppError(err error) *apperrors.AppError {
	var open *resilience.OpenError
	var httpErr *resilience.HTTPError
	if errors.As(err, &open) || errors.As(err, &httpErr) {
		return apperrors.NewExternalAPIError(SentimentServiceName, err)
	}
	return apperrors.ToAppError(err)
}
