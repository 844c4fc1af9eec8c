package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxRequestBodySize caps request bodies gateway-wide. The auth API's
// largest legitimate payload is a hex-encoded SRP verifier (a few KB);
// 1MB leaves generous headroom for proxied upstream traffic without
// letting a client buffer arbitrary amounts server-side.
const MaxRequestBodySize int64 = 1 * 1024 * 1024

// RequestSizeLimiter rejects bodies over maxSize. Content-Length is
// checked first for the fast path; the body is additionally wrapped in
// http.MaxBytesReader so a lying or absent Content-Length still cannot
// push more than maxSize bytes through.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":      gin.H{"code": "INVALID_REQUEST", "message": "request body exceeds the maximum allowed size"},
				"request_id": GetRequestID(c),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// DefaultSizeLimiter applies MaxRequestBodySize.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
