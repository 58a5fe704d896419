package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InvalidateIP clears every limit tracked for an IP: the request limit and
// each endpoint write limit
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	removed := rl.invalidateFallback(func(key string) bool {
		return key == ipKey(ip) || (strings.HasPrefix(key, keyPrefix+"endpoint:") && strings.HasSuffix(key, ":"+ip))
	})

	if rl.redisClient.IsEnabled() {
		if err := rl.deleteByPattern(ctx, redisKeyPrefix+ipKey(ip)); err != nil {
			return err
		}
		if err := rl.deleteByPattern(ctx, redisKeyPrefix+keyPrefix+"endpoint:*:"+ip); err != nil {
			return err
		}
	}

	slog.Info("Rate limits invalidated for IP", "ip", ip, "fallback_removed", removed)
	return nil
}

// InvalidateAll clears all rate limit state
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	removed := rl.invalidateFallback(func(string) bool { return true })

	if rl.redisClient.IsEnabled() {
		if err := rl.deleteByPattern(ctx, redisKeyPrefix+keyPrefix+"*"); err != nil {
			return err
		}
	}

	slog.Info("All rate limits invalidated", "fallback_removed", removed)
	return nil
}

func (rl *RateLimiter) invalidateFallback(match func(string) bool) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key := range rl.fallbackLimiters {
		if match(key) {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	return removed
}

// deleteByPattern removes matching keys with SCAN so Redis is never blocked
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()
	var cursor uint64

	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scanning %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("deleting keys for %q: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// GetKeyCount returns the number of tracked limit keys
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()
		return len(rl.fallbackLimiters), nil
	}

	client := rl.redisClient.GetClient()
	var cursor uint64
	count := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, redisKeyPrefix+keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("counting rate limit keys: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
