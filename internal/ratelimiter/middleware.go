package ratelimiter

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/models"
)

// RuleSet holds the admin-overridable rate-limit rule table, swapped
// atomically on reload so a lookup never blocks a concurrent refresh,
// the same pattern internal/proxy.RouteCache uses for routes.
type RuleSet struct {
	rules atomic.Pointer[[]models.RateLimitRule]
}

// NewRuleSet builds an empty RuleSet; callers populate it via Set once the
// database's enabled rules have been loaded.
func NewRuleSet() *RuleSet {
	rs := &RuleSet{}
	empty := []models.RateLimitRule{}
	rs.rules.Store(&empty)
	return rs
}

// Set atomically replaces the effective rule table.
func (rs *RuleSet) Set(rules []models.RateLimitRule) {
	cp := make([]models.RateLimitRule, len(rules))
	copy(cp, rules)
	rs.rules.Store(&cp)
}

func (rs *RuleSet) matching(method, path string) []models.RateLimitRule {
	rules := *rs.rules.Load()
	var out []models.RateLimitRule
	for _, r := range rules {
		if patternMatches(r.PathPattern, method, path) {
			out = append(out, r)
		}
	}
	return out
}

// patternMatches interprets a rule's PathPattern as "METHOD /path", with an
// optional trailing "/*" meaning "this path or anything nested under it"
// (e.g. "POST /auth/login/*" covers both /auth/login/init and
// /auth/login/verify).
func patternMatches(pattern, method, path string) bool {
	parts := strings.SplitN(pattern, " ", 2)
	if len(parts) != 2 {
		return false
	}
	if !strings.EqualFold(parts[0], method) {
		return false
	}
	rulePath := parts[1]
	if strings.HasSuffix(rulePath, "/*") {
		prefix := strings.TrimSuffix(rulePath, "/*")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == rulePath
}

// Middleware enforces every enabled rule matching the request's method and
// path, evaluating each rule's own dimension independently: a single
// request can be rejected by an IP-scoped rule, an email-scoped rule, or a
// user-scoped rule, whichever trips first. It must run after
// internal/middleware.RequestSizeLimiter so the body peek below is already
// bounded.
func Middleware(limiter *Limiter, rules *RuleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		matched := rules.matching(c.Request.Method, c.Request.URL.Path)
		if len(matched) == 0 {
			c.Next()
			return
		}

		var email, userID string
		if needsBody(matched) {
			email, userID = peekIdentity(c)
		}

		for _, rule := range matched {
			key, ok := dimensionKey(rule.Dimension, c, email, userID)
			if !ok {
				continue
			}
			r := Rule{ID: rule.ID, MaxRequests: rule.MaxRequests, Window: time.Duration(rule.WindowSecs) * time.Second}
			if !limiter.Allow(r, key) {
				apperrors.AbortWithError(c, apperrors.RateLimited())
				return
			}
		}

		c.Next()
	}
}

func needsBody(rules []models.RateLimitRule) bool {
	for _, r := range rules {
		if r.Dimension == models.DimensionEmail || r.Dimension == models.DimensionUser {
			return true
		}
	}
	return false
}

func dimensionKey(dim models.RateLimitDimension, c *gin.Context, email, userID string) (string, bool) {
	switch dim {
	case models.DimensionIP:
		return c.ClientIP(), true
	case models.DimensionEmail:
		if email == "" {
			return "", false
		}
		return strings.ToLower(email), true
	case models.DimensionUser:
		if userID == "" {
			return "", false
		}
		return userID, true
	default:
		return "", false
	}
}

// identityPayload is the subset of fields the auth handlers' request
// bodies carry that double as rate-limit dimension keys, present on the
// register/login/reset bodies (email) and the refresh body (refresh_token,
// whose unverified subject claim stands in for the user dimension; a
// forged subject only ever narrows a rate-limit bucket, never grants
// access, so skipping signature verification here is safe).
type identityPayload struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// peekIdentity reads the request body to recover an email or refresh-token
// subject for dimension keying, then restores it so the handler (and, for
// /auth/* traffic, the reverse proxy forwarding to the loopback Auth API)
// sees an unconsumed body.
func peekIdentity(c *gin.Context) (email, userID string) {
	if c.Request.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return "", ""
	}

	var payload identityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}

	if payload.RefreshToken != "" {
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(payload.RefreshToken, &claims); err == nil {
			userID = claims.Subject
		}
	}

	return payload.Email, userID
}
