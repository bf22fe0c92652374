package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/batch"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/security"
)

var clock = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

// writeConstantModel writes a snapshot whose output is p for every input.
func writeConstantModel(t *testing.T, dir, runID string, p float64) string {
	t.Helper()
	const inputSize, hidden = 12, 2
	zeros := func(r, c int) [][]float64 {
		m := make([][]float64, r)
		for i := range m {
			m[i] = make([]float64, c)
		}
		return m
	}
	data, err := json.Marshal(map[string]any{
		"architecture":          neural.Architecture{InputSize: inputSize, HiddenSize: hidden, OutputSize: 1},
		"weights_input_hidden":  zeros(hidden, inputSize),
		"bias_hidden":           make([]float64, hidden),
		"weights_hidden_output": zeros(1, hidden),
		"bias_output":           []float64{math.Log(p / (1 - p))},
		"performance":           map[string]any{"run_id": runID},
		"training_history":      []any{},
	})
	require.NoError(t, err)
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type testEnv struct {
	server   *Server
	combiner *hybrid.Combiner
	metrics  *monitoring.Metrics
	prom     *monitoring.Prometheus
}

func newTestEnv(t *testing.T, opts Options, snap *neural.Snapshot, withCache bool, perMinute int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := monitoring.NewLogger(monitoring.LogOptions{Level: "error", Output: io.Discard})
	combiner := hybrid.NewCombiner(hybrid.DefaultConfig(), analysis.NewComposer(analysis.DefaultConfig()), neural.NewHolder(snap),
		hybrid.WithLogger(logger.Logger), hybrid.WithClock(func() time.Time { return clock }))

	deps := Deps{
		Combiner: combiner,
		Batch:    batch.NewRunner(combiner, 4, logger.Logger),
		Tracker:  resilience.NewDegradationTracker(resilience.DegradationConfig{}, logger.Logger),
		Breakers: resilience.NewRegistry(),
		Metrics:  monitoring.NewMetrics(),
		Prom:     monitoring.NewPrometheus(),
		Logger:   logger,
	}
	if withCache {
		deps.Cache = cache.New(time.Minute, 100)
	}
	if perMinute > 0 {
		deps.Limiter = ratelimit.New(ratelimit.Disabled(), ratelimit.Config{PerMinute: perMinute}, deps.Metrics, deps.Prom, logger.Logger)
	}

	s := NewServer(opts, deps)
	s.now = func() time.Time { return clock }
	return &testEnv{server: s, combiner: combiner, metrics: deps.Metrics, prom: deps.Prom}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

const postBody = `{
	"text": "New study: 64% of developers now review code with AI. What has your experience been?",
	"media_count": 1,
	"interactions": 2500,
	"created_time": "2024-03-05T12:00:00Z",
	"current_time": "2024-03-05T14:00:00Z",
	"creator": {"follower_count": 20000, "following_count": 800, "avg_interactions": 900, "account_age_days": 500}
}`

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, string(analysis.MethodRuleBased), body["prediction_mode"])
	assert.Equal(t, false, body["model"].(map[string]any)["loaded"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPredict_RuleBased(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	rec := env.do(t, http.MethodPost, "/predict", postBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result analysis.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, analysis.MethodRuleBased, result.PredictionMethod)
	assert.GreaterOrEqual(t, result.ViralProbability, 0.0)
	assert.LessOrEqual(t, result.ViralProbability, 1.0)
	assert.Len(t, result.ComponentScores, 4)
	assert.Equal(t, analysis.CategoryFor(result.ViralProbability), result.Category)

	stats := env.metrics.GetStats()
	assert.Equal(t, int64(1), stats["predictions_by_method"].(map[string]int64)["rule-based"])
}

func TestPredict_Hybrid(t *testing.T) {
	snap, err := neural.Load(writeConstantModel(t, t.TempDir(), "run-a", 0.6))
	require.NoError(t, err)
	env := newTestEnv(t, Options{}, snap, false, 0)

	rec := env.do(t, http.MethodPost, "/predict", postBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result analysis.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, analysis.MethodHybrid, result.PredictionMethod)
	assert.LessOrEqual(t, result.ViralProbability, 0.85)
	assert.Equal(t, "run-a", result.Metadata.ModelRunID)
	require.NotNil(t, result.Breakdown)
	require.NotNil(t, result.Breakdown.MachineLearning)
	assert.InDelta(t, 0.6, *result.Breakdown.MachineLearning, 1e-9)
}

func TestPredict_Errors(t *testing.T) {
	env := newTestEnv(t, Options{MaxBodyBytes: 1 << 20}, nil, false, 0)

	tests := []struct {
		name         string
		body         string
		contentType  string
		wantStatus   int
		wantCategory string
	}{
		{name: "malformed json", body: `{"text": `, wantStatus: http.StatusBadRequest, wantCategory: "validation"},
		{name: "wrong field type", body: `{"interactions": "many"}`, wantStatus: http.StatusBadRequest, wantCategory: "validation"},
		{name: "text too long", body: `{"text": "` + strings.Repeat("a", 10001) + `"}`, wantStatus: http.StatusBadRequest, wantCategory: "validation"},
		{name: "not json", body: "a=b", contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusUnsupportedMediaType, wantCategory: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(tt.body))
			ct := tt.contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCategory, decode(t, rec)["category"])
		})
	}
}

func TestPredict_Cached(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, true, 0)

	first := env.do(t, http.MethodPost, "/predict", postBody)
	second := env.do(t, http.MethodPost, "/predict", postBody)

	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "MISS", first.Header().Get(cache.HeaderCache))
	assert.Equal(t, "HIT", second.Header().Get(cache.HeaderCache))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPredict_CacheKeyFollowsServerClock(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, true, 0)
	const noClock = `{"text": "Shipping a new release today", "interactions": 50}`

	tests := []struct {
		name    string
		body    string
		advance time.Duration
		want    string
	}{
		{name: "first request", body: noClock, want: "MISS"},
		{name: "same minute", body: noClock, advance: 30 * time.Second, want: "HIT"},
		{name: "next minute", body: noClock, advance: 45 * time.Second, want: "MISS"},
		{name: "explicit current_time first", body: postBody, want: "MISS"},
		{name: "explicit current_time ignores the server clock", body: postBody, advance: 10 * time.Minute, want: "HIT"},
	}

	now := clock
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			env.server.now = func() time.Time { return now }

			rec := env.do(t, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, rec.Header().Get(cache.HeaderCache))
		})
	}
}

func TestPredictBatch(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	body := `{"posts": [` + postBody + `, {"text": "` + strings.Repeat("a", 10001) + `"}, {}]}`
	rec := env.do(t, http.MethodPost, "/predict/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batch.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)
	for i, item := range resp.Items {
		assert.Equal(t, i, item.Index)
	}
	assert.NotNil(t, resp.Items[0].Result)
	assert.NotNil(t, resp.Items[1].Error)
	assert.NotNil(t, resp.Items[2].Result)
	assert.Equal(t, 2, resp.Summary.Succeeded)
	assert.Equal(t, 1, resp.Summary.Failed)
}

func TestPredictBatch_Limits(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	tests := []struct {
		name  string
		count int
		rule  string
	}{
		{name: "empty", count: 0, rule: "must satisfy min=1"},
		{name: "too many", count: 51, rule: "must satisfy max=50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := make([]string, tt.count)
			for i := range posts {
				posts[i] = `{"text": "hello"}`
			}
			rec := env.do(t, http.MethodPost, "/predict/batch", `{"posts": [`+strings.Join(posts, ",")+`]}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "validation", body["category"])
			assert.Equal(t, map[string]any{"posts": tt.rule}, body["fields"])
		})
	}
}

func TestTimingWindows(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		maxWindows int
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, maxWindows: 24},
		{name: "limited", query: "?from=2024-03-04T00:00:00Z&hours=48&limit=3&timezone=Europe/Berlin", wantStatus: http.StatusOK, maxWindows: 3},
		{name: "bad from", query: "?from=yesterday", wantStatus: http.StatusBadRequest},
		{name: "bad timezone", query: "?timezone=Mars/Olympus", wantStatus: http.StatusBadRequest},
		{name: "limit out of range", query: "?limit=500", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/timing/windows"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Windows []analysis.TimeSlot `json:"windows"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Windows)
			assert.LessOrEqual(t, len(body.Windows), tt.maxWindows)
		})
	}
}

const adminSecret = "reload-secret-for-tests"

func (e *testEnv) reload(t *testing.T, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/model/reload", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func reloadToken(t *testing.T) string {
	t.Helper()
	token, err := security.IssueToken([]byte(adminSecret), security.ScopeModelReload, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestModelReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConstantModel(t, dir, "run-a", 0.6)
	env := newTestEnv(t, Options{ModelPath: path, AdminSecret: adminSecret}, nil, true, 0)

	rec := env.do(t, http.MethodGet, "/model", "")
	assert.Equal(t, false, decode(t, rec)["loaded"])

	rec = env.reload(t, reloadToken(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.combiner.Model())
	assert.Equal(t, "run-a", env.combiner.Model().RunID())

	rec = env.do(t, http.MethodGet, "/model", "")
	body := decode(t, rec)
	assert.Equal(t, true, body["loaded"])
	assert.Equal(t, "12-2-1", body["architecture"])

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	rec = env.reload(t, reloadToken(t))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "model", decode(t, rec)["category"])
	assert.Equal(t, "run-a", env.combiner.Model().RunID(), "a failed reload keeps the serving model")
}

func TestModelReload_Unauthorized(t *testing.T) {
	path := writeConstantModel(t, t.TempDir(), "run-a", 0.6)
	wrongScope, err := security.IssueToken([]byte(adminSecret), "model:read", time.Hour)
	require.NoError(t, err)
	foreign, err := security.IssueToken([]byte("some-other-secret"), security.ScopeModelReload, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name          string
		secret        string
		authorization string
	}{
		{name: "no token", secret: adminSecret},
		{name: "not a bearer", secret: adminSecret, authorization: "Token abc"},
		{name: "wrong scope", secret: adminSecret, authorization: "Bearer " + wrongScope},
		{name: "foreign secret", secret: adminSecret, authorization: "Bearer " + foreign},
		{name: "reloads disabled without a secret", secret: "", authorization: reloadToken(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{ModelPath: path, AdminSecret: tt.secret}, nil, false, 0)
			rec := env.reload(t, tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "authentication", decode(t, rec)["category"])
			assert.Nil(t, env.combiner.Model(), "an unauthorized reload leaves rule-based mode")
		})
	}
}

func TestModelReload_NoPath(t *testing.T) {
	env := newTestEnv(t, Options{AdminSecret: adminSecret}, nil, false, 0)
	rec := env.reload(t, reloadToken(t))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "configuration", decode(t, rec)["category"])
}

func TestSwaggerDocs(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 0)

	rec := env.do(t, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Swagger string                    `json:"swagger"`
		Info    map[string]any            `json:"info"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, Version, doc.Info["version"])
	for path, method := range map[string]string{
		"/predict":        "post",
		"/predict/batch":  "post",
		"/timing/windows": "get",
		"/model":          "get",
		"/model/reload":   "post",
		"/health":         "get",
	} {
		assert.Contains(t, doc.Paths[path], method, path)
	}

	rec = env.do(t, http.MethodGet, "/swagger/index.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SwaggerUIBundle")
	assert.Contains(t, rec.Body.String(), "doc.json")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "script-src 'self'")
}

func TestRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, false, 1)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", postBody).Code)
	rec := env.do(t, http.MethodPost, "/predict", postBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "").Code, "health is not limited")
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{}, nil, true, 10)
	env.do(t, http.MethodPost, "/predict", postBody)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "viral_predictions_total")

	rec = env.do(t, http.MethodGet, "/metrics/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "rate_limiter")
	assert.Contains(t, body, "circuit_breakers")
	assert.Equal(t, "rule-based", body["prediction_mode"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigin: "https://app.example.com"}, nil, false, 0)

	req := httptest.NewRequest(http.MethodOptions, "/predict", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
