// Package errors - middleware.go
//
// This file implements the Gin error-handling middleware that is the
// single conversion point from an AppError to the wire envelope.
//
// Middleware Functions:
//   - ErrorHandler: converts c.Errors into the envelope
//   - Recovery: recovers from panics, never leaks a panic message to the client
//   - HandleError / AbortWithError: helpers for handlers
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/middleware"
)

// ErrorHandler converts the last error recorded on the context into the
// response envelope. It must run after RequestID() in the chain so the
// envelope's request_id is populated.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		reqID := middleware.GetRequestID(c)
		err := c.Errors.Last()

		appErr, ok := err.Err.(*AppError)
		if !ok {
			appErr = Internal("an unexpected error occurred")
			appErr.Details = err.Err.Error()
		}

		logErr(reqID, appErr)

		if !c.Writer.Written() {
			c.JSON(appErr.StatusCode, appErr.ToResponse(reqID))
		}
	}
}

// Recovery recovers from panics, logs them, and renders the same envelope
// an INTERNAL_ERROR AppError would.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				reqID := middleware.GetRequestID(c)
				logger.Security().Error().
					Str("request_id", reqID).
					Interface("panic", r).
					Msg("recovered from panic")

				appErr := Internal("an unexpected error occurred")
				c.JSON(http.StatusInternalServerError, appErr.ToResponse(reqID))
				c.Abort()
			}
		}()

		c.Next()
	}
}

// HandleError records err on the context and writes its response now.
func HandleError(c *gin.Context, err error) {
	reqID := middleware.GetRequestID(c)
	appErr, ok := err.(*AppError)
	if !ok {
		appErr = Internal("an unexpected error occurred")
		appErr.Details = err.Error()
	}
	logErr(reqID, appErr)
	c.Error(appErr)
	c.JSON(appErr.StatusCode, appErr.ToResponse(reqID))
}

// AbortWithError records err and aborts the handler chain immediately.
func AbortWithError(c *gin.Context, err *AppError) {
	reqID := middleware.GetRequestID(c)
	logErr(reqID, err)
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse(reqID))
}

func logErr(requestID string, appErr *AppError) {
	evt := logger.GetLogger().Warn()
	if appErr.StatusCode >= 500 {
		evt = logger.GetLogger().Error()
	}
	evt.Str("request_id", requestID).
		Str("error_code", appErr.Code).
		Str("details", appErr.Details).
		Msg(appErr.Message)
}
