package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

func testPost() types.Post {
	return types.PostSignal{
		Text:     "Five lessons from shipping a side project",
		Hashtags: []string{"#BuildInPublic"},
	}.WithDefaults(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC))
}

func testConfig(url string) SentimentConfig {
	cfg := DefaultSentimentConfig(url)
	cfg.APIKey = "secret"
	cfg.RequestsPerSecond = 0
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}
	return cfg
}

func TestSentimentClient_Success(t *testing.T) {
	var got sentimentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score": 72.5, "sub_scores": {"virality": 80}, "confidence": 0.9, "suggestions": ["Add a hook"]}`))
	}))
	defer server.Close()

	client, err := NewSentimentClient(testConfig(server.URL), nil, nil, nil)
	require.NoError(t, err)
	var observed []error
	client.OnCall(func(_ time.Duration, err error) { observed = append(observed, err) })

	score, err := client.Analyze(context.Background(), testPost())
	require.NoError(t, err)
	assert.Equal(t, []error{nil}, observed)
	assert.InDelta(t, 72.5, score.Score, 1e-12)
	assert.InDelta(t, 80, score.SubScores["virality"], 1e-12)
	assert.InDelta(t, 0.9, score.Confidence, 1e-12)
	assert.Equal(t, []string{"Add a hook"}, score.Suggestions)

	assert.Equal(t, "Five lessons from shipping a side project", got.Text)
	assert.Equal(t, []string{"buildinpublic"}, got.Hashtags)
	assert.Equal(t, types.DefaultAudience, got.AudienceType)
}

func TestSentimentClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"score": 40}`))
	}))
	defer server.Close()

	client, err := NewSentimentClient(testConfig(server.URL), nil, nil, nil)
	require.NoError(t, err)

	score, err := client.Analyze(context.Background(), testPost())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 0.5, score.Confidence, 1e-12, "missing confidence defaults to 0.5")
}

func TestSentimentClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category apperrors.ErrorCategory
		calls    int32
	}{
		{"client error not retried", http.StatusBadRequest, `{"error":"bad"}`, apperrors.CategoryExternalAPI, 1},
		{"missing score", http.StatusOK, `{"confidence":0.4}`, apperrors.CategoryValidation, 1},
		{"score out of range", http.StatusOK, `{"score":140}`, apperrors.CategoryValidation, 1},
		{"malformed body", http.StatusOK, `not json`, apperrors.CategoryValidation, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewSentimentClient(testConfig(server.URL), nil, nil, nil)
			require.NoError(t, err)

			_, err = client.Analyze(context.Background(), testPost())
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestSentimentClient_BreakerOpensAndTrackerRecords(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breakers := resilience.NewRegistry()
	tracker := resilience.NewDegradationTracker(resilience.DefaultDegradationConfig(), nil)
	tracker.Register(SentimentServiceName, true, nil)

	cfg := testConfig(server.URL)
	cfg.Retry.MaxAttempts = 1
	client, err := NewSentimentClient(cfg, breakers, tracker, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = client.Analyze(context.Background(), testPost())
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load(), "third call is short-circuited")
	assert.Equal(t, "open", breakers.Stats()[0].State)
	assert.Equal(t, resilience.LevelUnavailable, tracker.Health()[0].Level)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryExternalAPI))
}

func TestSentimentClient_HonorsContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewSentimentClient(testConfig(server.URL), nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Analyze(ctx, testPost())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewSentimentClient_RequiresURL(t *testing.T) {
	_, err := NewSentimentClient(SentimentConfig{}, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}
