// Package middleware provides the HTTP cross-cutting concerns shared by
// the gateway's three listeners (edge proxy, auth API, admin API):
// request ids, structured logging, timeouts, size limits, security
// headers, and response compression.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the response header carrying the request id.
	// It is server-controlled: the proxy rejects a client supplying it
	// with RESERVED_HEADER before any route handling.
	RequestIDHeader = "X-Request-Id"

	// RequestIDKey is the Gin context key for the request id.
	RequestIDKey = "request_id"
)

// RequestID assigns every request a fresh UUID, stores it in the context
// for the error envelope and structured logger, injects it into the
// headers forwarded upstream, and echoes it on the response. Inbound
// values are never propagated; X-Request-Id is server-owned identity,
// not a tracing header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()

		c.Set(RequestIDKey, requestID)
		c.Request.Header.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request id from the Gin context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
