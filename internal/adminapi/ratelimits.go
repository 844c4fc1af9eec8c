package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/cache"
	"github.com/arc-auth/gateway/internal/db"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/models"
)

type rateLimitRuleRequest struct {
	Name        string `json:"name" binding:"required"`
	PathPattern string `json:"path_pattern" binding:"required"`
	Dimension   string `json:"key_dimension" binding:"required,oneof=ip email user"`
	MaxRequests int    `json:"max_requests" binding:"required,min=1"`
	WindowSecs  int    `json:"window_secs" binding:"required,min=1"`
	Enabled     bool   `json:"enabled"`
}

func (r rateLimitRuleRequest) toModel(id string) models.RateLimitRule {
	return models.RateLimitRule{
		ID:          id,
		Name:        r.Name,
		PathPattern: r.PathPattern,
		Dimension:   models.RateLimitDimension(r.Dimension),
		MaxRequests: r.MaxRequests,
		WindowSecs:  r.WindowSecs,
		Enabled:     r.Enabled,
	}
}

// ListRateLimitRules returns every rule, enabled or not.
func (h *Handler) ListRateLimitRules(c *gin.Context) {
	rules, err := h.rules.ListAll(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// CreateRateLimitRule persists a new rule and reloads the limiter's
// rule set.
func (h *Handler) CreateRateLimitRule(c *gin.Context) {
	var req rateLimitRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), req.toModel(""))
	if err != nil {
		internalError(c, err)
		return
	}

	h.rulesChanged(c)
	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// UpdateRateLimitRule replaces a rule's fields by id.
func (h *Handler) UpdateRateLimitRule(c *gin.Context) {
	var req rateLimitRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	err := h.rules.Update(c.Request.Context(), req.toModel(c.Param("id")))
	if err == db.ErrNotFound {
		apperrors.AbortWithError(c, apperrors.NotFound("rate limit rule"))
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	h.rulesChanged(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteRateLimitRule removes a rule by id.
func (h *Handler) DeleteRateLimitRule(c *gin.Context) {
	err := h.rules.Delete(c.Request.Context(), c.Param("id"))
	if err == db.ErrNotFound {
		apperrors.AbortWithError(c, apperrors.NotFound("rate limit rule"))
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	h.rulesChanged(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) rulesChanged(c *gin.Context) {
	logger.Admin().Info().Str("admin_id", adminID(c)).Msg("rate limit rules changed")
	if h.invalidate.RulesChanged != nil {
		h.invalidate.RulesChanged()
	}
	h.signals.Publish(c.Request.Context(), cache.ChannelRateLimitChanged)
}
