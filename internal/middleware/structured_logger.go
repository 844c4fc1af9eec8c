// Package middleware - structured_logger.go
//
// This file implements structured request logging via zerolog, correlated
// by request id.
//
// Logged Fields:
// - request_id, method, path, query, status, duration_ms, client_ip, user_agent
// - user_id: the subject injected by the proxy's token classification, when present
// - errors: concatenated Gin errors, if any occurred
//
// Log Levels: info for 2xx/3xx, warn for 4xx, error for 5xx.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/logger"
)

// StructuredLoggerConfig allows customization of structured logging.
type StructuredLoggerConfig struct {
	// SkipPaths is a list of paths to skip logging (e.g., health checks).
	SkipPaths []string

	// LogQuery if false, skips logging query parameters (for privacy).
	LogQuery bool

	// LogUserAgent if false, skips logging user agent.
	LogUserAgent bool
}

// DefaultStructuredLoggerConfig returns the default configuration.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:    []string{"/health", "/healthz"},
		LogQuery:     true,
		LogUserAgent: true,
	}
}

// StructuredLogger logs every request with the default configuration.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig creates a structured logger with custom config.
func StructuredLoggerWithConfig(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		evt := logger.GetLogger().Info()
		if status >= 500 {
			evt = logger.GetLogger().Error()
		} else if status >= 400 {
			evt = logger.GetLogger().Warn()
		}

		evt = evt.Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if config.LogUserAgent {
			evt = evt.Str("user_agent", c.Request.UserAgent())
		}
		if userID, exists := c.Get(ContextKeyUserID); exists {
			evt = evt.Interface("user_id", userID)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}

		evt.Msg("request completed")
	}
}
