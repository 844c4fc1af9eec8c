// Package adminapi implements the configuration surface of the gateway:
// CRUD over proxy routes, rate-limit rules, JWT and SMTP configuration,
// end users, and API keys.
// It listens on its own optional port, separate from both the public
// proxy and the loopback auth API.
//
// Every mutation that affects a hot-path snapshot (route table,
// rate-limit rules, signing secret) triggers the matching Invalidation
// hook so the local process reloads immediately, and publishes the
// corresponding pub/sub signal so sibling processes sharing the database
// do the same.
package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/cache"
	"github.com/arc-auth/gateway/internal/db"
	"github.com/arc-auth/gateway/internal/token"
)

// Invalidation carries the callbacks the admin API fires after a
// mutation, so the owning process's in-memory snapshots are refreshed
// without waiting for their periodic pollers.
type Invalidation struct {
	RoutesChanged func()
	RulesChanged  func()
	SecretRotated func(newSecret string)
}

// Handler wires the admin CRUD endpoints to the persistent store.
type Handler struct {
	admins        *db.AdminRepo
	apiKeys       *db.ApiKeyRepo
	routes        *db.RouteRepo
	rules         *db.RateLimitRuleRepo
	jwtConfig     *db.JwtConfigRepo
	smtpConfig    *db.SmtpConfigRepo
	users         *db.UserRepo
	refreshTokens *db.RefreshTokenRepo
	stats         *db.StatsRepo

	tokens     *token.Manager
	signals    *cache.Cache
	invalidate Invalidation
}

// New constructs a Handler over conn. invalidate's hooks may be nil; a
// nil hook simply skips the local refresh (the subsystem's poller still
// catches up).
func New(conn *sqlx.DB, tokens *token.Manager, signals *cache.Cache, invalidate Invalidation) *Handler {
	return &Handler{
		admins:        db.NewAdminRepo(conn),
		apiKeys:       db.NewApiKeyRepo(conn),
		routes:        db.NewRouteRepo(conn),
		rules:         db.NewRateLimitRuleRepo(conn),
		jwtConfig:     db.NewJwtConfigRepo(conn),
		smtpConfig:    db.NewSmtpConfigRepo(conn),
		users:         db.NewUserRepo(conn),
		refreshTokens: db.NewRefreshTokenRepo(conn),
		stats:         db.NewStatsRepo(conn),
		tokens:        tokens,
		signals:       signals,
		invalidate:    invalidate,
	}
}

// RegisterRoutes mounts the admin surface on router. The auth endpoints
// are public (login needs no prior credential); everything else sits
// behind RequireAdmin.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	authGroup := router.Group("/admin/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.RegisterAdmin)
	}

	admin := router.Group("/admin")
	admin.Use(h.RequireAdmin())
	{
		admin.GET("/routes", h.ListRoutes)
		admin.POST("/routes", h.CreateRoute)
		admin.PUT("/routes/:id", h.UpdateRoute)
		admin.DELETE("/routes/:id", h.DeleteRoute)

		admin.GET("/rate-limits", h.ListRateLimitRules)
		admin.POST("/rate-limits", h.CreateRateLimitRule)
		admin.PUT("/rate-limits/:id", h.UpdateRateLimitRule)
		admin.DELETE("/rate-limits/:id", h.DeleteRateLimitRule)

		admin.GET("/config/jwt", h.GetJwtConfig)
		admin.PUT("/config/jwt", h.UpdateJwtConfig)
		admin.POST("/config/jwt/rotate-secret", h.RotateJwtSecret)
		admin.GET("/config/smtp", h.GetSmtpConfig)
		admin.PUT("/config/smtp", h.UpdateSmtpConfig)

		admin.GET("/users", h.ListUsers)
		admin.POST("/users/:id/disable", h.DisableUser)
		admin.POST("/users/:id/enable", h.EnableUser)
		admin.DELETE("/users/:id", h.DeleteUser)

		admin.POST("/api-keys", h.CreateApiKey)
		admin.GET("/api-keys", h.ListApiKeys)
		admin.DELETE("/api-keys/:id", h.DeleteApiKey)

		admin.GET("/stats", h.Stats)
	}
}

// Stats returns the overview counters the admin UI's dashboard renders.
func (h *Handler) Stats(c *gin.Context) {
	overview, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
