package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-auth/gateway/internal/auth"
	"github.com/arc-auth/gateway/internal/config"
	"github.com/arc-auth/gateway/internal/db"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/models"
	"github.com/arc-auth/gateway/internal/token"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

type fakeKeyStore struct {
	keys map[string]*models.ApiKey
}

func (f *fakeKeyStore) GetByHash(_ context.Context, hash string) (*models.ApiKey, error) {
	if k, ok := f.keys[hash]; ok {
		return k, nil
	}
	return nil, db.ErrNotFound
}

// newTestGateway wires a proxy in front of upstream with one protected
// route, mirroring cmd/gatewayd's middleware ordering.
func newTestGateway(t *testing.T, upstream string, tokens *token.Manager, keys ApiKeyLookup) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	routes := NewRouteCache("http://127.0.0.1:0")
	routes.Set([]config.Route{
		{Path: "/api", Upstream: upstream, Auth: true},
	}, nil)

	p := NewProxy(routes, NewAuthenticator(tokens, keys), 5*time.Second)

	engine := gin.New()
	engine.Use(ReservedHeaderGuard())
	engine.NoRoute(p.Handler())
	return engine
}

func newTokenManager() *token.Manager {
	return token.NewManager("test-secret", 100*time.Second, time.Hour, 90*time.Second)
}

func TestReservedHeaderRejectedBeforeUpstream(t *testing.T) {
	var upstreamCalls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
	}))
	defer upstream.Close()

	engine := newTestGateway(t, upstream.URL, newTokenManager(), &fakeKeyStore{})

	for _, header := range []string{"X-User-Id", "X-Request-Id"} {
		req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
		req.Header.Set(header, "forged")

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, header)
		assert.Contains(t, w.Body.String(), "RESERVED_HEADER", header)
	}
	assert.Equal(t, int64(0), upstreamCalls.Load())
}

func TestProtectedRouteWithoutCredential(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be contacted")
	}))
	defer upstream.Close()

	engine := newTestGateway(t, upstream.URL, newTokenManager(), &fakeKeyStore{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestJWTForwardedWithUserIDHeader(t *testing.T) {
	var seenUserID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = r.Header.Get("X-User-Id")
	}))
	defer upstream.Close()

	tokens := newTokenManager()
	engine := newTestGateway(t, upstream.URL, tokens, &fakeKeyStore{})

	access, err := tokens.IssueAccessToken("user-42", "u@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", seenUserID)
}

func TestAutoRefreshHeaderBoundary(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	// threshold 90s: a token with ~100s left must not refresh, one with
	// ~50s left must.
	tokens := newTokenManager()
	engine := newTestGateway(t, upstream.URL, tokens, &fakeKeyStore{})

	farFromExpiry, err := tokens.IssueAccessToken("user-1", "")
	require.NoError(t, err)

	tokens.SetTTLs(50*time.Second, time.Hour, 90*time.Second)
	nearExpiry, err := tokens.IssueAccessToken("user-1", "")
	require.NoError(t, err)

	send := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	w := send(farFromExpiry)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(HeaderNewAccessJWT))

	w = send(nearExpiry)
	assert.Equal(t, http.StatusOK, w.Code)
	refreshed := w.Header().Get(HeaderNewAccessJWT)
	require.NotEmpty(t, refreshed)
	assert.NotEqual(t, nearExpiry, refreshed)

	claims, err := tokens.ValidateAccessToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestExpiredTokenDistinctFromMalformed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	tokens := newTokenManager()
	engine := newTestGateway(t, upstream.URL, tokens, &fakeKeyStore{})

	tokens.SetTTLs(-1*time.Second, time.Hour, 0)
	expired, err := tokens.IssueAccessToken("user-1", "")
	require.NoError(t, err)
	tokens.SetTTLs(100*time.Second, time.Hour, 90*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAPIKeyAuthenticated(t *testing.T) {
	var seenCaller, seenPerms string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCaller = r.Header.Get(HeaderCallerID)
		seenPerms = r.Header.Get(HeaderPermissions)
	}))
	defer upstream.Close()

	raw, hash, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	keys := &fakeKeyStore{keys: map[string]*models.ApiKey{
		hash: {ID: "key-1", Permissions: []string{"*"}},
	}}
	engine := newTestGateway(t, upstream.URL, newTokenManager(), keys)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("X-API-Key", raw)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "key-1", seenCaller)
	assert.Equal(t, "*", seenPerms)

	// An unknown key is rejected without upstream contact.
	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("X-API-Key", "sk_0000")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
