package monitoring

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const slowRequestThreshold = 5 * time.Second

// MonitoringMiddleware creates Gin middleware for request monitoring
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)

		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > slowRequestThreshold {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// SecurityMonitoringMiddleware logs requests that look like probes
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userAgent := c.GetHeader("User-Agent")
		details := make(map[string]interface{})

		switch {
		case containsSQLInjectionPatterns(c.Request.URL.RawQuery):
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		case c.Request.Method == http.MethodPost && c.Request.ContentLength > maxWatchedBodyBytes:
			details["type"] = "large_request_body"
			details["size_bytes"] = c.Request.ContentLength
		case containsSuspiciousUserAgent(userAgent):
			details["type"] = "suspicious_user_agent"
		}

		if len(details) > 0 {
			details["path"] = c.Request.URL.Path
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

const maxWatchedBodyBytes = 64 << 10

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	"*/",
	" xp_",
	" sp_",
}

func containsSQLInjectionPatterns(rawQuery string) bool {
	query, err := url.QueryUnescape(rawQuery)
	if err != nil {
		query = rawQuery
	}
	return containsAny(strings.ToLower(query), sqlInjectionPatterns)
}

var suspiciousAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	return containsAny(strings.ToLower(userAgent), suspiciousAgents)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// HealthHandler serves service status with a metrics snapshot
func HealthHandler(metrics *Metrics, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   version,
			"metrics":   metrics.GetStats(),
		})
	}
}
