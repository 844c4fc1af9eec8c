package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig bounds how long a request may run before the gateway
// gives up on it.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the entire request.
	Timeout time.Duration

	// ExcludedPrefixes are path prefixes exempt from the deadline.
	ExcludedPrefixes []string
}

// DefaultTimeoutConfig returns the default per-request deadline:
// minutes-scale, with streaming traffic excluded entirely by the
// long-lived check below.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout: 2 * time.Minute,
	}
}

// Timeout enforces config.Timeout on every non-excluded request,
// cancelling the request context at the deadline so in-flight database
// and upstream calls unwind. WebSocket handshakes and SSE requests are
// skipped: once established those streams terminate only on peer
// disconnect.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range config.ExcludedPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		if isLongLived(c.Request) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
					"error":      gin.H{"code": "BAD_GATEWAY", "message": "the upstream did not respond in time"},
					"request_id": GetRequestID(c),
				})
			}
		}
	}
}

// TimeoutWithDuration is Timeout with only the deadline overridden.
func TimeoutWithDuration(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}

func isLongLived(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
}
