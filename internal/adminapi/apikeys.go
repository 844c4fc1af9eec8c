package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/auth"
	"github.com/arc-auth/gateway/internal/db"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
)

type createApiKeyRequest struct {
	Name        string   `json:"name" binding:"required"`
	Permissions []string `json:"permissions" binding:"required,min=1"`
}

// CreateApiKey mints a new machine credential owned by the calling
// admin. The raw key appears in this response and nowhere else, ever;
// only its hash and display prefix are persisted.
func (h *Handler) CreateApiKey(c *gin.Context) {
	var req createApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	raw, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		internalError(c, err)
		return
	}

	key, err := h.apiKeys.Create(c.Request.Context(), adminID(c), req.Name, hash, prefix, req.Permissions)
	if err != nil {
		internalError(c, err)
		return
	}

	logger.Admin().Info().
		Str("admin_id", adminID(c)).
		Str("key_prefix", prefix).
		Msg("api key created")

	c.JSON(http.StatusOK, gin.H{"key": key, "raw_key": raw})
}

// ListApiKeys returns the calling admin's keys, hashes omitted.
func (h *Handler) ListApiKeys(c *gin.Context) {
	keys, err := h.apiKeys.ListByAdmin(c.Request.Context(), adminID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// DeleteApiKey removes one of the calling admin's keys. The ownership
// scope is enforced in the delete statement itself.
func (h *Handler) DeleteApiKey(c *gin.Context) {
	err := h.apiKeys.Delete(c.Request.Context(), adminID(c), c.Param("id"))
	if err == db.ErrNotFound {
		apperrors.AbortWithError(c, apperrors.NotFound("api key"))
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	logger.Admin().Info().Str("admin_id", adminID(c)).Msg("api key deleted")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
