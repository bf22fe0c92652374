// Package cache is an in-memory TTL response cache for prediction endpoints.
package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
)

// HeaderCache reports HIT or MISS on cacheable routes.
const HeaderCache = "X-Cache"

type item struct {
	data      []byte
	expiresAt time.Time
}

// Cache provides thread-safe caching with TTL and a size bound.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]item
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

// New creates a cache. maxItems <= 0 means unbounded.
func New(ttl time.Duration, maxItems int) *Cache {
	return &Cache{
		items:    make(map[string]item),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Run evicts expired items every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Key hashes the given parts into a cache key.
func Key(parts ...[]byte) string {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(it.expiresAt) {
		return nil, false
	}
	return it.data, true
}

// Set stores data. When full, expired entries are dropped first and then the
// entry closest to expiry.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.makeRoomLocked()
	}
	c.items[key] = item{data: data, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache) makeRoomLocked() {
	now := c.now()
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			continue
		}
		if oldestKey == "" || it.expiresAt.Before(oldest) {
			oldestKey, oldest = key, it.expiresAt
		}
	}
	if len(c.items) >= c.maxItems && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	expired := 0
	for _, it := range c.items {
		if now.After(it.expiresAt) {
			expired++
		}
	}
	return map[string]any{
		"total_items":   len(c.items),
		"expired_items": expired,
		"active_items":  len(c.items) - expired,
		"max_items":     c.maxItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Middleware caches successful JSON responses keyed by path, body and the
// value scope returns for that body (typically the serving model's run ID,
// so a model swap never serves stale predictions). metrics and prom may be nil.
func (c *Cache) Middleware(scope func(body []byte) string, metrics *monitoring.Metrics, prom *monitoring.Prometheus) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodPost {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Next()
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		v := ""
		if scope != nil {
			v = scope(body)
		}
		key := Key([]byte(ctx.Request.URL.Path), []byte(v), body)

		if data, ok := c.Get(key); ok {
			record(metrics, prom, true)
			ctx.Header(HeaderCache, "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", data)
			ctx.Abort()
			return
		}
		record(metrics, prom, false)
		ctx.Header(HeaderCache, "MISS")

		w := &capturingWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = w
		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK && w.body.Len() > 0 {
			c.Set(key, bytes.Clone(w.body.Bytes()))
		}
	}
}

func record(metrics *monitoring.Metrics, prom *monitoring.Prometheus, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	if metrics != nil {
		if hit {
			metrics.IncrementCacheHit()
		} else {
			metrics.IncrementCacheMiss()
		}
	}
	if prom != nil {
		prom.CacheLookups.WithLabelValues(result).Inc()
	}
}

// capturingWriter copies the response body as it is written.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
