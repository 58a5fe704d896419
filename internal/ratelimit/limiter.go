package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
)

const (
	keyPrefix = "ratelimit:"
	// redis_rate stores every key under this prefix
	redisKeyPrefix = "rate:"

	fallbackIdleTTL  = 30 * time.Minute
	fallbackJanitor  = 10 * time.Minute
	minFallbackBurst = 5
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin    int // all API requests per client IP
	WriteLimitPerMin int // admin writes per client IP and endpoint
	BurstMultiplier  int // in-memory burst = limit * multiplier
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:    120,
		WriteLimitPerMin: 20,
		BurstMultiplier:  2,
	}
}

// ConfigFrom maps the application rate limit section
func ConfigFrom(cfg config.RateLimitConfig) Config {
	return Config{
		IPLimitPerMin:    cfg.IPLimitPerMin,
		WriteLimitPerMin: cfg.WriteLimitPerMin,
		BurstMultiplier:  cfg.BurstMultiplier,
	}
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

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*fallbackEntry
	fallbackMutex    sync.Mutex

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter creates a rate limiter. A nil or disabled redisClient uses
// the in-memory limiter only.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if redisClient == nil {
		redisClient = &RedisClient{}
	}
	if config.BurstMultiplier < 1 {
		config.BurstMultiplier = 1
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*fallbackEntry),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupFallbackLimiters()

	return rl
}

// Close stops the fallback janitor
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stop) })
}

func ipKey(ip string) string {
	return keyPrefix + "ip:" + ip
}

func endpointKey(endpoint, ip string) string {
	return fmt.Sprintf("%sendpoint:%s:%s", keyPrefix, endpoint, ip)
}

// AllowIP checks the per-minute limit for a client IP
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.allow(ctx, ipKey(ip), rl.config.IPLimitPerMin, time.Minute)
}

// AllowWrite checks the per-minute write limit for an endpoint and client IP
func (rl *RateLimiter) AllowWrite(ctx context.Context, endpoint, ip string) (*Result, error) {
	return rl.allow(ctx, endpointKey(endpoint, ip), rl.config.WriteLimitPerMin, time.Minute)
}

func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, limit, period)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	retryAfter := res.RetryAfter
	if retryAfter < 0 {
		retryAfter = 0
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: retryAfter,
	}, nil
}

// allowFallback is a token bucket refilled at limit/period with a burst of
// limit*BurstMultiplier
func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) *Result {
	now := time.Now()
	perToken := period / time.Duration(limit)

	rl.fallbackMutex.Lock()
	entry, exists := rl.fallbackLimiters[key]
	if !exists {
		burst := limit * rl.config.BurstMultiplier
		if burst < minFallbackBurst {
			burst = minFallbackBurst
		}
		entry = &fallbackEntry{limiter: rate.NewLimiter(rate.Every(perToken), burst)}
		rl.fallbackLimiters[key] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	rl.fallbackMutex.Unlock()

	allowed := limiter.AllowN(now, 1)
	tokens := limiter.TokensAt(now)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	// time until the bucket is full again
	missing := float64(limiter.Burst()) - tokens
	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(missing * float64(perToken))),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) * float64(perToken))
	}
	return result
}

func (rl *RateLimiter) cleanupFallbackLimiters() {
	ticker := time.NewTicker(fallbackJanitor)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			if n := rl.evictIdle(now); n > 0 {
				slog.Debug("Evicted idle fallback rate limiters", "count", n)
			}
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	evicted := 0
	for key, entry := range rl.fallbackLimiters {
		if now.Sub(entry.lastSeen) > fallbackIdleTTL {
			delete(rl.fallbackLimiters, key)
			evicted++
		}
	}
	return evicted
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":       rl.redisClient.IsEnabled(),
		"fallback_limiters":   fallbackCount,
		"ip_limit_per_min":    rl.config.IPLimitPerMin,
		"write_limit_per_min": rl.config.WriteLimitPerMin,
	}

	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}

	return stats
}
