package adminapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-auth/gateway/internal/cache"
	"github.com/arc-auth/gateway/internal/db"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/token"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, *token.Manager) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	tokens := token.NewManager("test-secret", 15*time.Minute, time.Hour, time.Minute)
	signals, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)

	conn := db.NewDatabaseForTesting(mockDB).DB()
	return New(conn, tokens, signals, Invalidation{}), mock, tokens
}

func guardedRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin/ping", h.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin_id": adminID(c)})
	})
	return engine
}

func TestRequireAdmin_NoCredential(t *testing.T) {
	h, _, _ := newTestHandler(t)
	engine := guardedRouter(h)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestRequireAdmin_AdminToken(t *testing.T) {
	h, _, tokens := newTestHandler(t)
	engine := guardedRouter(h)

	tok, err := tokens.IssueAdminToken("admin-1", "root")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin-1")
}

func TestRequireAdmin_UserAccessTokenRejected(t *testing.T) {
	h, _, tokens := newTestHandler(t)
	engine := guardedRouter(h)

	// An end-user access token is signed with the shared secret, not the
	// derived admin secret, so it must not open the admin surface.
	access, err := tokens.IssueAccessToken("user-1", "u@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin_ApiKeyWithoutAdminPermission(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	engine := guardedRouter(h)

	rows := sqlmock.NewRows([]string{"id", "admin_id", "name", "key_hash", "prefix", "permissions", "created_at"}).
		AddRow("key-1", "admin-1", "ci", "somehash", "sk_abcde", "/api/v1", time.Now())
	mock.ExpectQuery(`SELECT \* FROM api_keys WHERE key_hash = \$1`).WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("X-API-Key", "sk_whatever")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireAdmin_ApiKeyWithAdminPermission(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	engine := guardedRouter(h)

	rows := sqlmock.NewRows([]string{"id", "admin_id", "name", "key_hash", "prefix", "permissions", "created_at"}).
		AddRow("key-1", "admin-1", "ops", "somehash", "sk_abcde", "admin", time.Now())
	mock.ExpectQuery(`SELECT \* FROM api_keys WHERE key_hash = \$1`).WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("X-API-Key", "sk_whatever")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin-1")
	require.NoError(t, mock.ExpectationsWereMet())
}
