package ratelimiter

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/models"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

func TestPatternMatches(t *testing.T) {
	cases := []struct {
		pattern, method, path string
		want                  bool
	}{
		{"POST /auth/register", "POST", "/auth/register", true},
		{"POST /auth/register", "GET", "/auth/register", false},
		{"POST /auth/register", "POST", "/auth/register/verify", false},
		{"POST /auth/login/*", "POST", "/auth/login/init", true},
		{"POST /auth/login/*", "POST", "/auth/login/verify", true},
		{"POST /auth/login/*", "POST", "/auth/login", true},
		{"POST /auth/login/*", "POST", "/auth/loginx", false},
		{"garbage", "POST", "/auth/register", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, patternMatches(c.pattern, c.method, c.path),
			"%s %s vs %s", c.method, c.path, c.pattern)
	}
}

func newLimitedRouter(t *testing.T, rules []models.RateLimitRule) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := New()
	rs := NewRuleSet()
	rs.Set(rules)

	engine := gin.New()
	engine.Use(Middleware(limiter, rs))
	engine.POST("/auth/register", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	t.Cleanup(limiter.Close)
	return engine
}

func TestMiddleware_EmailDimensionIndependentOfIP(t *testing.T) {
	engine := newLimitedRouter(t, []models.RateLimitRule{
		{ID: "r-email", PathPattern: "POST /auth/register", Dimension: models.DimensionEmail, MaxRequests: 1, WindowSecs: 60, Enabled: true},
	})

	post := func(email string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/register",
			strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post("a@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, post("a@example.com"))
	assert.Equal(t, http.StatusOK, post("b@example.com"))
}

func TestMiddleware_BodyStillReadableByHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New()
	defer limiter.Close()
	rs := NewRuleSet()
	rs.Set([]models.RateLimitRule{
		{ID: "r-email", PathPattern: "POST /auth/register", Dimension: models.DimensionEmail, MaxRequests: 10, WindowSecs: 60, Enabled: true},
	})

	var sawBody string
	engine := gin.New()
	engine.Use(Middleware(limiter, rs))
	engine.POST("/auth/register", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		sawBody = string(body)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	payload := `{"email":"a@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(payload))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, sawBody, "the body peek must restore the body for the handler")
}

func TestMiddleware_IPDimensionCountsPerRule(t *testing.T) {
	engine := newLimitedRouter(t, []models.RateLimitRule{
		{ID: "r-ip", PathPattern: "POST /auth/register", Dimension: models.DimensionIP, MaxRequests: 5, WindowSecs: 3600, Enabled: true},
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/register",
			strings.NewReader(`{"email":"u`+strings.Repeat("x", i)+`@example.com"}`))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d from one IP", i+1)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"distinct@example.com"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "6th request from one IP")
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}
