package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
)

// RedisClient wraps the Redis client; a disabled client means in-memory limiting
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// NewRedisClient connects to Redis. An empty address returns a disabled
// client and no error; a failed ping returns a disabled client and the error.
func NewRedisClient(ctx context.Context, cfg config.RateLimitConfig) (*RedisClient, error) {
	if cfg.RedisAddr == "" {
		slog.Warn("Redis address not configured, rate limiting will use in-memory fallback")
		return &RedisClient{}, nil
	}

	slog.Info("Initializing Redis client", "addr", cfg.RedisAddr, "db", cfg.RedisDB)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
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
		client.Close()
		return &RedisClient{addr: cfg.RedisAddr}, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("Redis client connected", "addr", cfg.RedisAddr)

	return &RedisClient{
		client:  client,
		enabled: true,
		addr:    cfg.RedisAddr,
	}, nil
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// IsEnabled reports whether Redis is connected
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.enabled
}

// HealthCheck pings Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return fmt.Errorf("redis is disabled")
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.IsEnabled() && r.client != nil {
		slog.Info("Closing Redis client connection")
		return r.client.Close()
	}
	return nil
}

// GetPoolStats returns Redis connection pool statistics
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() || r.client == nil {
		return map[string]interface{}{
			"enabled": false,
		}
	}

	stats := r.client.PoolStats()

	return map[string]interface{}{
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
