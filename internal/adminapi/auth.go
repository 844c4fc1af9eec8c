package adminapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/auth"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
)

// contextKeyAdminID is where RequireAdmin records the authenticated
// caller's admin id: the admin's own id for JWT callers, the owning
// admin's id (ApiKey.AdminID) for machine callers.
const contextKeyAdminID = "admin_id"

// adminPermission is the permission string an API key must carry (or
// the "*" wildcard) to reach the admin surface as a machine caller.
const adminPermission = "admin"

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an admin by username and Argon2-verified password
// and returns a short-lived admin session token. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (h *Handler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	admin, err := h.admins.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}

	if err := auth.VerifyPassword(req.Password, admin.PasswordHash); err != nil {
		logger.Admin().Warn().Str("username", req.Username).Msg("admin login failed")
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}

	tok, err := h.tokens.IssueAdminToken(admin.ID, admin.Username)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tok, "admin": admin})
}

type adminRegisterRequest struct {
	Token    string `json:"token" binding:"required"`
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=12"`
}

// RegisterAdmin redeems a single-use bootstrap registration token and
// creates the admin account it authorizes. The token burn and the
// account insert share one transaction.
func (h *Handler) RegisterAdmin(c *gin.Context) {
	var req adminRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(c, err)
		return
	}

	ctx := c.Request.Context()
	tx, err := h.admins.BeginTxx(ctx)
	if err != nil {
		internalError(c, err)
		return
	}
	defer tx.Rollback()

	admin, err := h.admins.RedeemRegistrationTokenTx(ctx, tx, req.Token, req.Username, hash)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(c, err)
		return
	}

	logger.Admin().Info().Str("username", admin.Username).Msg("admin account created")

	tok, err := h.tokens.IssueAdminToken(admin.ID, admin.Username)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "admin": admin})
}

// RequireAdmin gates the configuration endpoints: either a Bearer admin
// session token, or an X-API-Key whose permission set includes "admin"
// (machine callers).
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer := bearerToken(c); bearer != "" {
			claims, err := h.tokens.ValidateAdminToken(bearer)
			if err != nil {
				apperrors.AbortWithError(c, apperrors.InvalidToken())
				return
			}
			c.Set(contextKeyAdminID, claims.Subject)
			c.Next()
			return
		}

		if raw := c.GetHeader("X-API-Key"); raw != "" {
			key, err := h.apiKeys.GetByHash(c.Request.Context(), auth.HashAPIKey(raw))
			if err != nil || !key.HasPermission(adminPermission) {
				apperrors.AbortWithError(c, apperrors.InvalidToken())
				return
			}
			c.Set(contextKeyAdminID, key.AdminID)
			c.Next()
			return
		}

		apperrors.AbortWithError(c, apperrors.InvalidToken())
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// adminID returns the authenticated caller id RequireAdmin stored.
func adminID(c *gin.Context) string {
	return c.GetString(contextKeyAdminID)
}

func internalError(c *gin.Context, err error) {
	apperrors.AbortWithError(c, apperrors.Wrap(apperrors.ErrInternal, "an unexpected error occurred", err))
}
