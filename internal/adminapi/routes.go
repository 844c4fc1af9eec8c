package adminapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/cache"
	"github.com/arc-auth/gateway/internal/db"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/models"
)

type routeRequest struct {
	Path        string `json:"path" binding:"required"`
	Upstream    string `json:"upstream" binding:"required"`
	RequireAuth bool   `json:"require_auth"`
	StripPrefix string `json:"strip_prefix"`
	Enabled     bool   `json:"enabled"`
}

func (r routeRequest) validate() *apperrors.AppError {
	if !strings.HasPrefix(r.Path, "/") {
		return apperrors.InvalidRequest("path must start with /")
	}
	if !strings.HasPrefix(r.Upstream, "http://") && !strings.HasPrefix(r.Upstream, "https://") {
		return apperrors.InvalidRequest("upstream must be an http(s) URL")
	}
	if r.StripPrefix != "" && !strings.HasPrefix(r.Path, r.StripPrefix) {
		return apperrors.InvalidRequest("strip_prefix must be a prefix of path")
	}
	return nil
}

// ListRoutes returns every dynamic route, enabled or not.
func (h *Handler) ListRoutes(c *gin.Context) {
	routes, err := h.routes.ListAll(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// CreateRoute persists a new dynamic route and refreshes the route cache.
func (h *Handler) CreateRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}
	if appErr := req.validate(); appErr != nil {
		apperrors.AbortWithError(c, appErr)
		return
	}

	route, err := h.routes.Create(c.Request.Context(), models.ProxyRoute{
		Path:        req.Path,
		Upstream:    req.Upstream,
		RequireAuth: req.RequireAuth,
		StripPrefix: req.StripPrefix,
		Enabled:     req.Enabled,
	})
	if err != nil {
		internalError(c, err)
		return
	}

	h.routesChanged(c)
	c.JSON(http.StatusOK, gin.H{"route": route})
}

// UpdateRoute replaces a route's fields by id and refreshes the cache.
func (h *Handler) UpdateRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}
	if appErr := req.validate(); appErr != nil {
		apperrors.AbortWithError(c, appErr)
		return
	}

	err := h.routes.Update(c.Request.Context(), models.ProxyRoute{
		ID:          c.Param("id"),
		Path:        req.Path,
		Upstream:    req.Upstream,
		RequireAuth: req.RequireAuth,
		StripPrefix: req.StripPrefix,
		Enabled:     req.Enabled,
	})
	if err == db.ErrNotFound {
		apperrors.AbortWithError(c, apperrors.NotFound("route"))
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	h.routesChanged(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteRoute removes a dynamic route and refreshes the cache.
func (h *Handler) DeleteRoute(c *gin.Context) {
	err := h.routes.Delete(c.Request.Context(), c.Param("id"))
	if err == db.ErrNotFound {
		apperrors.AbortWithError(c, apperrors.NotFound("route"))
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	h.routesChanged(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) routesChanged(c *gin.Context) {
	logger.Admin().Info().Str("admin_id", adminID(c)).Msg("route table changed")
	if h.invalidate.RoutesChanged != nil {
		h.invalidate.RoutesChanged()
	}
	h.signals.Publish(c.Request.Context(), cache.ChannelRoutesChanged)
}
