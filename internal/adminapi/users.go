package adminapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/db"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
)

// ListUsers returns a page of end-user accounts.
func (h *Handler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "limit": limit, "offset": offset})
}

// DisableUser flips is_active off. A disabled user can still present a
// structurally valid access token until it expires; disabling also
// revokes outstanding refresh tokens so no new ones get minted.
func (h *Handler) DisableUser(c *gin.Context) {
	h.setUserActive(c, false)
}

// EnableUser flips is_active back on.
func (h *Handler) EnableUser(c *gin.Context) {
	h.setUserActive(c, true)
}

func (h *Handler) setUserActive(c *gin.Context, active bool) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.users.SetActive(ctx, id, active); err != nil {
		if err == db.ErrNotFound {
			apperrors.AbortWithError(c, apperrors.NotFound("user"))
			return
		}
		internalError(c, err)
		return
	}

	if !active {
		tx, err := h.refreshTokens.BeginTxx(ctx)
		if err != nil {
			internalError(c, err)
			return
		}
		defer tx.Rollback()
		if err := h.refreshTokens.RevokeAllForUser(ctx, tx, id); err != nil {
			internalError(c, err)
			return
		}
		if err := tx.Commit(); err != nil {
			internalError(c, err)
			return
		}
	}

	logger.Admin().Info().
		Str("admin_id", adminID(c)).
		Str("user_id", id).
		Bool("active", active).
		Msg("user active flag changed")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteUser removes an end-user account outright. Refresh tokens cascade
// at the schema level; SRP sessions carry no foreign key and are left to
// expire and be swept by the cleanup scheduler.
func (h *Handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		if err == db.ErrNotFound {
			apperrors.AbortWithError(c, apperrors.NotFound("user"))
			return
		}
		internalError(c, err)
		return
	}

	logger.Admin().Info().Str("admin_id", adminID(c)).Str("user_id", id).Msg("user deleted")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
