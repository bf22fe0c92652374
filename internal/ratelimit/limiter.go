// Package ratelimit limits requests per client IP, in Redis when available and
// in memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
)

const keyPrefix = "ratelimit:"

// Config holds rate limiter configuration
type Config struct {
	PerMinute int           // requests per minute per IP; <= 0 disables limiting
	IdleTTL   time.Duration // fallback limiters unused this long are dropped
}

func DefaultConfig() Config {
	return Config{PerMinute: 60, IdleTTL: 10 * time.Minute}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter checks Redis first and falls back to per-key token buckets when
// Redis is disabled or failing.
type Limiter struct {
	redis        *RedisClient
	redisLimiter *redis_rate.Limiter
	config       Config
	metrics      *monitoring.Metrics
	prom         *monitoring.Prometheus
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	fallback map[string]*fallbackEntry
}

// New creates a limiter. redis, metrics and prom may be nil.
func New(redis *RedisClient, config Config, metrics *monitoring.Metrics, prom *monitoring.Prometheus, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	l := &Limiter{
		redis:    redis,
		config:   config,
		metrics:  metrics,
		prom:     prom,
		logger:   logger,
		now:      time.Now,
		fallback: make(map[string]*fallbackEntry),
	}
	if redis.IsEnabled() {
		l.redisLimiter = redis_rate.NewLimiter(redis.Client())
	} else {
		logger.Warn("Redis unavailable, using in-memory rate limiting only")
	}
	return l
}

// Enabled reports whether any limit is applied.
func (l *Limiter) Enabled() bool { return l.config.PerMinute > 0 }

// AllowIP applies the per-minute limit to ip.
func (l *Limiter) AllowIP(ctx context.Context, ip string) *Result {
	return l.allow(ctx, keyPrefix+"ip:"+ip, l.config.PerMinute, time.Minute)
}

func (l *Limiter) allow(ctx context.Context, key string, limit int, period time.Duration) *Result {
	if l.redisLimiter != nil {
		result, err := l.allowRedis(ctx, key, limit, period)
		if err == nil {
			return result
		}
		l.logger.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if l.metrics != nil {
			l.metrics.IncrementRateLimitError()
		}
	}
	if l.metrics != nil {
		l.metrics.IncrementRateLimitFallback()
	}
	return l.allowFallback(key, limit, period)
}

func (l *Limiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := l.redisLimiter.Allow(ctx, key, redis_rate.Limit{Rate: limit, Burst: limit, Period: period})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      limit,
		Remaining:  res.Remaining,
		ResetAt:    l.now().Add(res.ResetAfter),
		RetryAfter: max(res.RetryAfter, 0),
	}, nil
}

// allowFallback uses a token bucket refilling limit tokens per period with a
// burst of limit.
func (l *Limiter) allowFallback(key string, limit int, period time.Duration) *Result {
	now := l.now()
	every := period / time.Duration(limit)

	l.mu.Lock()
	entry, ok := l.fallback[key]
	if !ok {
		entry = &fallbackEntry{limiter: rate.NewLimiter(rate.Every(every), limit)}
		l.fallback[key] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)
	l.mu.Unlock()

	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(time.Duration(float64(limit)-tokens) * every),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) * float64(every))
	}
	return result
}

// Reset clears the limit for ip in Redis and in memory.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	key := keyPrefix + "ip:" + ip
	l.mu.Lock()
	delete(l.fallback, key)
	l.mu.Unlock()
	if l.redisLimiter != nil {
		return l.redisLimiter.Reset(ctx, key)
	}
	return nil
}

// Run drops idle fallback limiters every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				l.logger.Debug("Dropped idle fallback rate limiters", "count", n)
			}
		}
	}
}

func (l *Limiter) sweep() int {
	cutoff := l.now().Add(-l.config.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.fallback {
		if entry.lastSeen.Before(cutoff) {
			delete(l.fallback, key)
			removed++
		}
	}
	return removed
}

// Stats reports limiter state for /metrics/stats.
func (l *Limiter) Stats() map[string]any {
	l.mu.Lock()
	count := len(l.fallback)
	l.mu.Unlock()
	return map[string]any{
		"per_minute":        l.config.PerMinute,
		"redis_enabled":     l.redis.IsEnabled(),
		"fallback_limiters": count,
		"redis_pool":        l.redis.PoolStats(),
	}
}
