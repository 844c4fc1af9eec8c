package proxy

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/auth"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/middleware"
	"github.com/arc-auth/gateway/internal/models"
	"github.com/arc-auth/gateway/internal/token"
)

// reservedHeaders are server-controlled; a client supplying either one
// is rejected before any upstream contact.
var reservedHeaders = []string{"X-User-Id", "X-Request-Id"}

// HeaderUserID and HeaderPermissions are the identity headers the proxy
// injects on a successful JWT or API-key check, for the upstream to
// trust in place of the stripped client credential.
const (
	HeaderUserID       = "X-User-Id"
	HeaderCallerID     = "X-Caller-Id"
	HeaderPermissions  = "X-Api-Key-Permissions"
	HeaderNewAccessJWT = "X-New-Access-Token"
)

// ApiKeyLookup resolves a raw API key's hash to its stored row; bound to
// internal/db.ApiKeyRepo.GetByHash by the caller, kept as an interface
// here so this package doesn't import internal/db directly.
type ApiKeyLookup interface {
	GetByHash(ctx context.Context, hash string) (*models.ApiKey, error)
}

// Authenticator validates the token on a protected route and injects the
// identity headers the route's upstream expects. It holds no per-request
// state and is safe for concurrent use.
type Authenticator struct {
	tokens  *token.Manager
	apiKeys ApiKeyLookup
}

// NewAuthenticator builds an Authenticator bound to tokens for JWT
// validation/auto-refresh and apiKeys for X-API-Key lookups.
func NewAuthenticator(tokens *token.Manager, apiKeys ApiKeyLookup) *Authenticator {
	return &Authenticator{tokens: tokens, apiKeys: apiKeys}
}

// ReservedHeaderGuard aborts with 400 RESERVED_HEADER if the client
// supplied X-User-Id or X-Request-Id itself. It must be the first
// middleware on the gateway listener: before middleware.RequestID
// injects the server-owned X-Request-Id, and before route matching, so a
// forged identity header never reaches an unauthenticated route either.
func ReservedHeaderGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range reservedHeaders {
			if c.GetHeader(h) != "" {
				apperrors.AbortWithError(c, apperrors.ReservedHeader(h))
				return
			}
		}
		c.Next()
	}
}

// Authenticate enforces route.RequireAuth, classifying the request's
// credential (Bearer JWT takes precedence over X-API-Key)
// and injecting the resulting identity headers onto c.Request so the
// reverse proxy forwards them upstream. It returns false if the request
// was aborted. Reserved-header rejection has already happened in
// ReservedHeaderGuard by the time this runs.
func (a *Authenticator) Authenticate(c *gin.Context, route Route) bool {
	if !route.RequireAuth {
		return true
	}

	if bearer := bearerToken(c); bearer != "" {
		return a.authenticateJWT(c, bearer)
	}

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		return a.authenticateAPIKey(c, apiKey, route)
	}

	apperrors.AbortWithError(c, apperrors.InvalidToken())
	return false
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (a *Authenticator) authenticateJWT(c *gin.Context, raw string) bool {
	claims, err := a.tokens.ValidateAccessToken(raw)
	if err != nil {
		if err == token.ErrExpired {
			apperrors.AbortWithError(c, apperrors.TokenExpired())
		} else {
			apperrors.AbortWithError(c, apperrors.InvalidToken())
		}
		return false
	}

	c.Request.Header.Set(HeaderUserID, claims.Subject)
	c.Set(middleware.ContextKeyUserID, claims.Subject)

	if a.tokens.ShouldAutoRefresh(claims.ExpiresAt.Time) {
		if newAccess, err := a.tokens.IssueAccessToken(claims.Subject, claims.Email); err == nil {
			c.Header(HeaderNewAccessJWT, newAccess)
		} else {
			logger.Token().Warn().Str("user_id", claims.Subject).Msg("opportunistic refresh failed")
		}
	}

	return true
}

func (a *Authenticator) authenticateAPIKey(c *gin.Context, raw string, route Route) bool {
	hash := auth.HashAPIKey(raw)
	key, err := a.apiKeys.GetByHash(c.Request.Context(), hash)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidToken())
		return false
	}

	// Permissions are route path prefixes (or "*"); a key may only reach
	// routes its permission set names.
	if !key.HasPermission(route.Path) {
		apperrors.AbortWithError(c, apperrors.InvalidToken())
		return false
	}

	c.Request.Header.Set(HeaderCallerID, key.ID)
	c.Request.Header.Set(HeaderPermissions, strings.Join(key.Permissions, ","))
	c.Set(middleware.ContextKeyUserID, key.ID)

	return true
}

// IsUpgradeRequest reports whether r is a WebSocket handshake or an SSE
// request. Either one authenticates exactly once at this request and
// is never re-checked for the life of the connection.
func IsUpgradeRequest(r *http.Request) bool {
	upgrade := strings.ToLower(r.Header.Get("Upgrade"))
	connection := strings.ToLower(r.Header.Get("Connection"))
	if upgrade == "websocket" && strings.Contains(connection, "upgrade") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
}
