package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the Redis instance backing distributed limits.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient wraps the Redis client so callers can run without Redis.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// Disabled returns a client that always reports Redis as unavailable.
func Disabled() *RedisClient { return &RedisClient{} }

// NewRedisClient connects and pings Redis. An empty address yields a disabled
// client and no error; a failed ping yields a disabled client and the error.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		logger.Warn("Redis address not configured, rate limiting will use in-memory fallback")
		return Disabled(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return &RedisClient{addr: cfg.Addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis client connected", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisClient{client: client, enabled: true, addr: cfg.Addr}, nil
}

func (r *RedisClient) Client() *redis.Client { return r.client }

// IsEnabled returns whether Redis is connected.
func (r *RedisClient) IsEnabled() bool { return r != nil && r.enabled }

// HealthCheck pings Redis. It matches resilience.HealthCheckFunc.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return fmt.Errorf("redis is disabled")
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	if r.IsEnabled() {
		return r.client.Close()
	}
	return nil
}

// PoolStats reports connection pool counters.
func (r *RedisClient) PoolStats() map[string]any {
	if !r.IsEnabled() {
		return map[string]any{"enabled": false}
	}
	stats := r.client.PoolStats()
	return map[string]any{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
