package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
)

func newFallbackLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(Disabled(), Config{PerMinute: perMinute}, monitoring.NewMetrics(), nil, nil)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_FallbackBlocksAfterLimit(t *testing.T) {
	l, _ := newFallbackLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := l.AllowIP(ctx, "10.0.0.1")
		require.True(t, result.Allowed, "request %d", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	blocked := l.AllowIP(ctx, "10.0.0.1")
	assert.False(t, blocked.Allowed)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, blocked.RetryAfter, 12*time.Second)

	assert.True(t, l.AllowIP(ctx, "10.0.0.2").Allowed, "limits are per IP")
}

func TestLimiter_FallbackRefills(t *testing.T) {
	l, now := newFallbackLimiter(t, 60)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.True(t, l.AllowIP(ctx, "ip").Allowed)
	}
	require.False(t, l.AllowIP(ctx, "ip").Allowed)

	*now = now.Add(time.Second)
	assert.True(t, l.AllowIP(ctx, "ip").Allowed)
}

func TestLimiter_ResetAndSweep(t *testing.T) {
	l, now := newFallbackLimiter(t, 1)
	ctx := context.Background()

	require.True(t, l.AllowIP(ctx, "ip").Allowed)
	require.False(t, l.AllowIP(ctx, "ip").Allowed)
	require.NoError(t, l.Reset(ctx, "ip"))
	assert.True(t, l.AllowIP(ctx, "ip").Allowed)

	*now = now.Add(time.Hour)
	assert.Equal(t, 1, l.sweep())
	assert.Equal(t, 0, l.Stats()["fallback_limiters"])
}

func TestLimiter_Stats(t *testing.T) {
	l, _ := newFallbackLimiter(t, 10)
	l.AllowIP(context.Background(), "ip")

	stats := l.Stats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 10, stats["per_minute"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}

func TestRedisClient_EmptyAddrIsDisabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		perMinute  int
		requests   int
		wantStatus int
		wantHeader bool
	}{
		{name: "under limit", perMinute: 3, requests: 3, wantStatus: http.StatusOK, wantHeader: true},
		{name: "over limit", perMinute: 2, requests: 3, wantStatus: http.StatusTooManyRequests, wantHeader: true},
		{name: "disabled", perMinute: 0, requests: 5, wantStatus: http.StatusOK, wantHeader: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newFallbackLimiter(t, tt.perMinute)
			router := gin.New()
			router.Use(l.Middleware())
			router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

			var rec *httptest.ResponseRecorder
			for i := 0; i < tt.requests; i++ {
				rec = httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			}

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHeader, rec.Header().Get("X-RateLimit-Limit") != "")
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.NotEmpty(t, rec.Header().Get("Retry-After"))
				assert.Contains(t, rec.Body.String(), "rate_limit")
			}
		})
	}
}
