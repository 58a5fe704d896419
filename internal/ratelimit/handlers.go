package ratelimit

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

// HandleAdminRateLimits returns limiter state and metrics
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyCount, err := rl.GetKeyCount(c.Request.Context())
		if err != nil {
			apperrors.Respond(c, apperrors.NewInternalError("failed to count rate limit keys", err))
			return
		}

		var rateLimitMetrics map[string]interface{}
		if rl.metrics != nil {
			rateLimitMetrics = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, gin.H{
			"total_keys":    keyCount,
			"limiter_stats": rl.GetStats(),
			"metrics":       rateLimitMetrics,
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminInvalidateIP clears the limits for the :ip path parameter
func (rl *RateLimiter) HandleAdminInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if net.ParseIP(ip) == nil {
			apperrors.Respond(c, apperrors.NewValidationError("invalid IP address", ip))
			return
		}

		if err := rl.InvalidateIP(c.Request.Context(), ip); err != nil {
			apperrors.Respond(c, apperrors.NewInternalError("failed to invalidate rate limits", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ip":          ip,
			"invalidated": true,
		})
	}
}
