package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Score recompute metrics
	RecomputeCount        int64
	RecomputeErrors       int64
	LastRecomputeNs       int64
	LastComputedEntities  int64
	TotalComputedEntities int64

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	CircuitBreakerOpens  int64
	CircuitBreakerCloses int64

	ExternalAPIRequests   map[string]int64
	ExternalAPIErrorCount map[string]int64
	ExternalAPIMutex      sync.RWMutex

	RateLimitIPBlocks       int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
	RateLimitEndpointBlocks map[string]int64
	RateLimitMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:               time.Now(),
		ResponseTimes:           make([]time.Duration, 0, maxResponseSamples),
		RequestCountByStatus:    make(map[int]int64),
		ExternalAPIRequests:     make(map[string]int64),
		ExternalAPIErrorCount:   make(map[string]int64),
		RateLimitEndpointBlocks: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordRecompute records one score recompute and how many titles it covered
func (m *Metrics) RecordRecompute(duration time.Duration, entities int, err error) {
	atomic.AddInt64(&m.RecomputeCount, 1)
	if err != nil {
		atomic.AddInt64(&m.RecomputeErrors, 1)
		return
	}
	atomic.StoreInt64(&m.LastRecomputeNs, duration.Nanoseconds())
	atomic.StoreInt64(&m.LastComputedEntities, int64(entities))
	atomic.AddInt64(&m.TotalComputedEntities, int64(entities))
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > maxResponseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// IncrementCircuitBreakerOpen increments circuit breaker open count
func (m *Metrics) IncrementCircuitBreakerOpen() {
	atomic.AddInt64(&m.CircuitBreakerOpens, 1)
}

// IncrementCircuitBreakerClose increments circuit breaker close count
func (m *Metrics) IncrementCircuitBreakerClose() {
	atomic.AddInt64(&m.CircuitBreakerCloses, 1)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.ExternalAPIMutex.Lock()
	defer m.ExternalAPIMutex.Unlock()

	m.ExternalAPIRequests[apiName]++
	if !success {
		m.ExternalAPIErrorCount[apiName]++
	}
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	m.ResponseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetExternalAPIStats returns external API statistics
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.ExternalAPIMutex.RLock()
	defer m.ExternalAPIMutex.RUnlock()

	stats := make(map[string]interface{})
	for api, requests := range m.ExternalAPIRequests {
		errs := m.ExternalAPIErrorCount[api]
		errorRate := float64(0)
		if requests > 0 {
			errorRate = float64(errs) / float64(requests) * 100
		}

		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     errs,
			"error_rate": errorRate,
		}
	}
	return stats
}

// GetRecomputeStats returns score recompute statistics
func (m *Metrics) GetRecomputeStats() map[string]interface{} {
	return map[string]interface{}{
		"runs":                    atomic.LoadInt64(&m.RecomputeCount),
		"errors":                  atomic.LoadInt64(&m.RecomputeErrors),
		"last_duration_ms":        float64(atomic.LoadInt64(&m.LastRecomputeNs)) / 1e6,
		"last_computed_entities":  atomic.LoadInt64(&m.LastComputedEntities),
		"total_computed_entities": atomic.LoadInt64(&m.TotalComputedEntities),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errs := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errs) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	totalCacheRequests := cacheHits + cacheMisses
	if totalCacheRequests > 0 {
		cacheHitRate = float64(cacheHits) / float64(totalCacheRequests) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errs,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(avgResponseTime) / 1e6,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),
		"recompute":                m.GetRecomputeStats(),

		"circuit_breaker_opens":  atomic.LoadInt64(&m.CircuitBreakerOpens),
		"circuit_breaker_closes": atomic.LoadInt64(&m.CircuitBreakerCloses),
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.RecomputeCount, 0)
	atomic.StoreInt64(&m.RecomputeErrors, 0)
	atomic.StoreInt64(&m.LastRecomputeNs, 0)
	atomic.StoreInt64(&m.LastComputedEntities, 0)
	atomic.StoreInt64(&m.TotalComputedEntities, 0)
	atomic.StoreInt64(&m.CircuitBreakerOpens, 0)
	atomic.StoreInt64(&m.CircuitBreakerCloses, 0)
	atomic.StoreInt64(&m.RateLimitIPBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.ExternalAPIMutex.Lock()
	m.ExternalAPIRequests = make(map[string]int64)
	m.ExternalAPIErrorCount = make(map[string]int64)
	m.ExternalAPIMutex.Unlock()

	m.RateLimitMutex.Lock()
	m.RateLimitEndpointBlocks = make(map[string]int64)
	m.RateLimitMutex.Unlock()

	m.StartTime = time.Now()
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// IncrementRateLimitEndpoint increments rate limit blocks for a specific endpoint
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitEndpointBlocks[endpoint]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	endpointBlocksCopy := make(map[string]int64, len(m.RateLimitEndpointBlocks))
	for k, v := range m.RateLimitEndpointBlocks {
		endpointBlocksCopy[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
		"endpoint_blocks": endpointBlocksCopy,
	}
}
