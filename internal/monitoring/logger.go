package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging with domain helpers
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

// NewLoggerWithWriter creates a JSON logger writing to w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	level := slog.LevelInfo
	if statusCode >= 500 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// RecomputeLogger logs a score recompute run
func (l *Logger) RecomputeLogger(scope string, entities int, duration time.Duration, err error) {
	if err != nil {
		l.Error("Score recompute failed",
			"scope", scope,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}
	l.Info("Score recompute completed",
		"scope", scope,
		"entities", entities,
		"duration_ms", duration.Milliseconds(),
	)
}

// ImportLogger logs a catalog import
func (l *Logger) ImportLogger(mediaType, externalID, titleID string, created bool, err error) {
	if err != nil {
		l.Warn("Catalog import failed",
			"media_type", mediaType,
			"external_id", externalID,
			"error", err,
		)
		return
	}
	l.Info("Catalog import completed",
		"media_type", mediaType,
		"external_id", externalID,
		"title_id", titleID,
		"created", created,
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// ExternalAPILogger logs external API calls
func (l *Logger) ExternalAPILogger(apiName, method, endpoint string, statusCode int, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "External API Call",
		"api_name", apiName,
		"method", method,
		"endpoint", endpoint,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}

	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()
