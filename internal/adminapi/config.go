package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/cache"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/models"
)

// GetJwtConfig returns TTLs, the rotation policy flag, and the secret's
// last rotation timestamp. The secret itself never leaves the database
// row; clients see only secret_updated_at.
func (h *Handler) GetJwtConfig(c *gin.Context) {
	cfg, err := h.jwtConfig.Get(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jwt": cfg})
}

type jwtConfigRequest struct {
	AccessTokenTTLSecs       int  `json:"access_token_ttl_secs" binding:"required,min=60"`
	RefreshTokenTTLSecs      int  `json:"refresh_token_ttl_secs" binding:"required,min=3600"`
	AutoRefreshThresholdSecs int  `json:"auto_refresh_threshold_secs" binding:"required,min=0"`
	RotateRefreshOnUse       bool `json:"rotate_refresh_on_use"`
}

// UpdateJwtConfig updates the token TTLs and refresh-rotation policy
// without touching the secret. New TTLs apply to tokens issued after the
// owning processes reload the row.
func (h *Handler) UpdateJwtConfig(c *gin.Context) {
	var req jwtConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	err := h.jwtConfig.UpdateTTLs(c.Request.Context(),
		time.Duration(req.AccessTokenTTLSecs)*time.Second,
		time.Duration(req.RefreshTokenTTLSecs)*time.Second,
		time.Duration(req.AutoRefreshThresholdSecs)*time.Second,
		req.RotateRefreshOnUse,
	)
	if err != nil {
		internalError(c, err)
		return
	}

	logger.Admin().Info().Str("admin_id", adminID(c)).Msg("jwt config updated")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RotateJwtSecret replaces the signing secret, invalidating every
// outstanding access and refresh token on its next validation. The new
// secret is swapped into this process's token manager immediately and
// broadcast to siblings via pub/sub.
func (h *Handler) RotateJwtSecret(c *gin.Context) {
	newSecret, err := h.jwtConfig.RotateSecret(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	if h.invalidate.SecretRotated != nil {
		h.invalidate.SecretRotated(newSecret)
	}
	h.signals.Publish(c.Request.Context(), cache.ChannelSecretRotated)

	logger.Security().Info().Str("admin_id", adminID(c)).Msg("jwt signing secret rotated")

	cfg, err := h.jwtConfig.Get(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "secret_updated_at": cfg.SecretUpdatedAt})
}

// GetSmtpConfig returns the outbound mail settings. The password field
// is masked by the model's JSON tags.
func (h *Handler) GetSmtpConfig(c *gin.Context) {
	cfg, err := h.smtpConfig.Get(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"smtp": cfg})
}

type smtpConfigRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required,min=1,max=65535"`
	User     string `json:"smtp_user"`
	Pass     string `json:"smtp_pass"`
	From     string `json:"from_address" binding:"required,email"`
	FromName string `json:"from_name"`
}

// UpdateSmtpConfig replaces the singleton SMTP row.
func (h *Handler) UpdateSmtpConfig(c *gin.Context) {
	var req smtpConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	err := h.smtpConfig.Update(c.Request.Context(), models.SmtpConfig{
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Pass:     req.Pass,
		From:     req.From,
		FromName: req.FromName,
	})
	if err != nil {
		internalError(c, err)
		return
	}

	logger.Admin().Info().Str("admin_id", adminID(c)).Msg("smtp config updated")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
