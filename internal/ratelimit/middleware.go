package ratelimit

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

// IPRateLimitMiddleware limits every request per client IP
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// never block on limiter failure
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware applies the write limit to one named endpoint
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowWrite(c.Request.Context(), endpoint, ip)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			slog.Warn("Endpoint rate limit exceeded", "endpoint", endpoint, "ip", ip)
			reject(c, result)
			return
		}

		c.Next()
	}
}

func setHeaders(c *gin.Context, result *Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func reject(c *gin.Context, result *Result) {
	secs := int(result.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	retryAfter := strconv.Itoa(secs)
	c.Header("Retry-After", retryAfter)
	apperrors.Respond(c, apperrors.NewRateLimitError(retryAfter))
}
