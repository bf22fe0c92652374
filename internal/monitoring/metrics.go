package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const responseTimeSamples = 1000

// Metrics holds in-process counters served by /metrics/stats.
type Metrics struct {
	requestCount int64
	errorCount   int64
	cacheHits    int64
	cacheMisses  int64
	startTime    time.Time

	responseTimes      []time.Duration
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	predictionsByMethod map[string]int64
	predictionsMutex    sync.RWMutex

	externalAPIRequests   map[string]int64
	externalAPIErrorCount map[string]int64
	externalAPIMutex      sync.RWMutex

	rateLimitBlocks   int64
	rateLimitFallback int64
	rateLimitErrors   int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:             time.Now(),
		responseTimes:         make([]time.Duration, 0, responseTimeSamples),
		requestCountByStatus:  make(map[int]int64),
		predictionsByMethod:   make(map[string]int64),
		externalAPIRequests:   make(map[string]int64),
		externalAPIErrorCount: make(map[string]int64),
	}
}

func (m *Metrics) IncrementRequest()   { atomic.AddInt64(&m.requestCount, 1) }
func (m *Metrics) IncrementError()     { atomic.AddInt64(&m.errorCount, 1) }
func (m *Metrics) IncrementCacheHit()  { atomic.AddInt64(&m.cacheHits, 1) }
func (m *Metrics) IncrementCacheMiss() { atomic.AddInt64(&m.cacheMisses, 1) }

func (m *Metrics) IncrementRateLimitBlock()    { atomic.AddInt64(&m.rateLimitBlocks, 1) }
func (m *Metrics) IncrementRateLimitFallback() { atomic.AddInt64(&m.rateLimitFallback, 1) }
func (m *Metrics) IncrementRateLimitError()    { atomic.AddInt64(&m.rateLimitErrors, 1) }

// RecordResponseTime keeps the most recent samples for percentiles.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.responseTimesMutex.Lock()
	defer m.responseTimesMutex.Unlock()
	if len(m.responseTimes) == responseTimeSamples {
		copy(m.responseTimes, m.responseTimes[1:])
		m.responseTimes = m.responseTimes[:responseTimeSamples-1]
	}
	m.responseTimes = append(m.responseTimes, duration)
}

func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// RecordPrediction counts a prediction by the method that produced it.
func (m *Metrics) RecordPrediction(method string) {
	m.predictionsMutex.Lock()
	defer m.predictionsMutex.Unlock()
	m.predictionsByMethod[method]++
}

func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.externalAPIMutex.Lock()
	defer m.externalAPIMutex.Unlock()
	m.externalAPIRequests[apiName]++
	if !success {
		m.externalAPIErrorCount[apiName]++
	}
}

// PercentileResponseTime returns the nearest-rank percentile of recent response times.
func (m *Metrics) PercentileResponseTime(percentile float64) time.Duration {
	m.responseTimesMutex.RLock()
	times := append([]time.Duration(nil), m.responseTimes...)
	m.responseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	index := int(float64(len(times)-1) * percentile / 100.0)
	return times[min(index, len(times)-1)]
}

func (m *Metrics) statusDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()
	out := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		out[code] = count
	}
	return out
}

func (m *Metrics) predictionDistribution() map[string]int64 {
	m.predictionsMutex.RLock()
	defer m.predictionsMutex.RUnlock()
	out := make(map[string]int64, len(m.predictionsByMethod))
	for method, count := range m.predictionsByMethod {
		out[method] = count
	}
	return out
}

func (m *Metrics) externalAPIStats() map[string]any {
	m.externalAPIMutex.RLock()
	defer m.externalAPIMutex.RUnlock()

	stats := make(map[string]any, len(m.externalAPIRequests))
	for api, requests := range m.externalAPIRequests {
		errs := m.externalAPIErrorCount[api]
		stats[api] = map[string]any{
			"requests":   requests,
			"errors":     errs,
			"error_rate": percent(errs, requests),
		}
	}
	return stats
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// GetStats returns a snapshot of every metric.
func (m *Metrics) GetStats() map[string]any {
	requests := atomic.LoadInt64(&m.requestCount)
	errs := atomic.LoadInt64(&m.errorCount)
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)

	return map[string]any{
		"uptime_seconds":           time.Since(m.startTime).Seconds(),
		"start_time":               m.startTime.Format(time.RFC3339),
		"total_requests":           requests,
		"error_count":              errs,
		"error_rate_percent":       percent(errs, requests),
		"cache_hits":               hits,
		"cache_misses":             misses,
		"cache_hit_rate_percent":   percent(hits, hits+misses),
		"p50_response_time_ms":     ms(m.PercentileResponseTime(50)),
		"p95_response_time_ms":     ms(m.PercentileResponseTime(95)),
		"p99_response_time_ms":     ms(m.PercentileResponseTime(99)),
		"status_code_distribution": m.statusDistribution(),
		"predictions_by_method":    m.predictionDistribution(),
		"external_api_stats":       m.externalAPIStats(),
		"rate_limit": map[string]int64{
			"blocks":         atomic.LoadInt64(&m.rateLimitBlocks),
			"fallback_count": atomic.LoadInt64(&m.rateLimitFallback),
			"redis_errors":   atomic.LoadInt64(&m.rateLimitErrors),
		},
	}
}
