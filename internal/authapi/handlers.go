// Package authapi implements the internal SRP registration/login/
// refresh/reset HTTP surface. It is bound to loopback in cmd/gatewayd
// and reached only through the edge proxy's implicit "/auth/*"
// forwarding rule.
package authapi

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-auth/gateway/internal/captcha"
	apperrors "github.com/arc-auth/gateway/internal/errors"
	"github.com/arc-auth/gateway/internal/logger"
	"github.com/arc-auth/gateway/internal/mailer"
	"github.com/arc-auth/gateway/internal/models"
	"github.com/arc-auth/gateway/internal/srp"
	"github.com/arc-auth/gateway/internal/token"
)

// Handler wires the SRP protocol state machines to the
// persistent store, token service, mailer, and captcha subsystem.
type Handler struct {
	store  *Store
	tokens *token.Manager
	mailer *mailer.Mailer

	captchaEnabled     bool
	codeTTL            time.Duration
	srpSessionTTL      time.Duration
	captchaTTL         time.Duration
	rotateRefreshOnUse bool
}

// New constructs a Handler. captchaEnabled mirrors the captcha.enabled
// config flag; rotateRefreshOnUse mirrors jwt_config's
// rotate_refresh_on_use policy toggle.
func New(store *Store, tokens *token.Manager, m *mailer.Mailer, captchaEnabled, rotateRefreshOnUse bool) *Handler {
	return &Handler{
		store:              store,
		tokens:             tokens,
		mailer:             m,
		captchaEnabled:     captchaEnabled,
		codeTTL:            10 * time.Minute,
		srpSessionTTL:      2 * time.Minute,
		captchaTTL:         60 * time.Second,
		rotateRefreshOnUse: rotateRefreshOnUse,
	}
}

// RegisterRoutes mounts every auth endpoint under group.
func (h *Handler) RegisterRoutes(group gin.IRoutes) {
	group.POST("/register", h.Register)
	group.POST("/register/verify", h.RegisterVerify)
	group.POST("/login/init", h.LoginInit)
	group.POST("/login/verify", h.LoginVerify)
	group.POST("/refresh", h.Refresh)
	group.POST("/password/reset", h.PasswordReset)
	group.POST("/password/reset/confirm", h.PasswordResetConfirm)
	group.GET("/captcha", h.Captcha)
}

// --- /auth/register -------------------------------------------------------

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	CaptchaID   string `json:"captcha_id"`
	CaptchaText string `json:"captcha_text"`
}

// Register starts the registration flow: generate a 6-digit code,
// persist it, hand it to the mailer. If captcha is enabled, the request
// must also burn a valid captcha first.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidEmail())
		return
	}

	if h.captchaEnabled {
		if req.CaptchaID == "" || req.CaptchaText == "" {
			apperrors.AbortWithError(c, apperrors.InvalidCaptcha())
			return
		}
		ok, err := h.store.captchas.VerifyAndBurn(c.Request.Context(), req.CaptchaID, req.CaptchaText)
		if err != nil {
			apperrors.AbortWithError(c, apperrors.Internal(""))
			return
		}
		if !ok {
			apperrors.AbortWithError(c, apperrors.InvalidCaptcha())
			return
		}
	}

	code, err := randomSixDigitCode()
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	if _, err := h.store.codes.Create(c.Request.Context(), req.Email, code, models.VerificationKindRegister, h.codeTTL); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	if err := h.mailer.SendVerificationCode(c.Request.Context(), req.Email, code); err != nil {
		// A failed send does not change the response shape; the code
		// still exists and can be resent via another /register call.
		logger.Mailer().Warn().Str("email", req.Email).Msg("verification email failed to send")
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- /auth/register/verify -------------------------------------------------

type registerVerifyRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6"`
	Salt     string `json:"salt" binding:"required"`
	Verifier string `json:"verifier" binding:"required"`
}

// RegisterVerify completes registration: atomically consume the code,
// create the user with the client-supplied (salt, verifier), issue
// access+refresh tokens, and store the refresh-token hash, all within
// one transaction.
func (h *Handler) RegisterVerify(c *gin.Context) {
	var req registerVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	if appErr := validateSrpMaterial(req.Salt, req.Verifier); appErr != nil {
		apperrors.AbortWithError(c, appErr)
		return
	}

	ctx := c.Request.Context()
	tx, err := h.store.users.BeginTxx(ctx)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	defer tx.Rollback()

	if _, err := h.store.codes.ConsumeTx(ctx, tx, req.Email, req.Code, models.VerificationKindRegister); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCode())
		return
	}

	user, err := h.store.users.CreateTx(ctx, tx, req.Email, req.Salt, req.Verifier)
	if err != nil {
		if dbIsUniqueViolation(err) {
			apperrors.AbortWithError(c, apperrors.EmailExists())
			return
		}
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	access, refreshRaw, refreshHash, refreshExp, err := h.issueTokens(user.ID, user.Email)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := h.store.refreshTokens.Store(ctx, tx, user.ID, refreshHash, refreshExp); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	if err := tx.Commit(); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"access_token":  access,
		"refresh_token": refreshRaw,
	})
}

// --- /auth/login/init -------------------------------------------------------

type loginInitRequest struct {
	Email        string `json:"email" binding:"required,email"`
	ClientPublic string `json:"client_public" binding:"required"`
}

// LoginInit is the first leg of the SRP handshake. Unknown emails take
// the enumeration-resistant synthetic-session branch uniformly: the
// response shape never discloses account existence.
func (h *Handler) LoginInit(c *gin.Context) {
	var req loginInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.users.GetByEmail(ctx, req.Email)

	var salt, verifier, userID string
	if err != nil {
		salt = srp.DeterministicSalt(req.Email)
		verifier = srp.DeterministicSalt("verifier:" + req.Email)
		userID = ""
	} else {
		salt = user.Salt
		verifier = user.Verifier
		userID = user.ID
	}

	eph, err := srp.GenerateServerEphemeral(verifier)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	sess, err := h.store.sessions.Create(ctx, userID, eph.Private.String(), req.ClientPublic, h.srpSessionTTL)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    sess.ID,
		"salt":          salt,
		"server_public": eph.Public,
	})
}

// --- /auth/login/verify -----------------------------------------------------

type loginVerifyRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	ClientProof string `json:"client_proof" binding:"required"`
}

// LoginVerify is the second leg of the SRP handshake. The session is
// fetched and deleted atomically (and the deletion committed) before
// the proof is even checked, so a replayed session id can never reach
// the proof comparison and a failed verify burns the session for good.
func (h *Handler) LoginVerify(c *gin.Context) {
	var req loginVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	ctx := c.Request.Context()
	sess, err := h.consumeSession(ctx, req.SessionID)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}
	if !sess.UserID.Valid {
		// Synthetic session from the enumeration-resistant branch: no
		// verifier exists that could ever produce a matching proof.
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}

	user, err := h.store.users.GetByID(ctx, sess.UserID.String)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}
	if !user.IsActive {
		// Disabled accounts fail the same way unknown ones do.
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}
	if !user.EmailVerified {
		apperrors.AbortWithError(c, apperrors.EmailNotVerified())
		return
	}

	b, ok := new(big.Int).SetString(sess.ServerEphemeral, 10)
	if !ok {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	serverProof, err := srp.VerifyClientProof(user.Email, user.Salt, user.Verifier, b, sess.ClientPublic, req.ClientProof)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCredentials())
		return
	}

	access, refreshRaw, refreshHash, refreshExp, err := h.issueTokens(user.ID, user.Email)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	tx, err := h.store.refreshTokens.BeginTxx(ctx)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	defer tx.Rollback()
	if err := h.store.refreshTokens.Store(ctx, tx, user.ID, refreshHash, refreshExp); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := tx.Commit(); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"server_proof":  serverProof,
		"access_token":  access,
		"refresh_token": refreshRaw,
	})
}

// consumeSession deletes and returns the session in its own committed
// transaction: whatever the verify outcome, the session id is spent.
func (h *Handler) consumeSession(ctx context.Context, id string) (*models.SrpSession, error) {
	tx, err := h.store.sessions.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := h.store.sessions.FetchAndDeleteTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

// --- /auth/refresh -----------------------------------------------------------

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a fresh access token. Under
// rotateRefreshOnUse the old hash is revoked and a new one stored in the
// same transaction, so two valid refresh tokens can never coexist for
// one lineage; otherwise the same refresh token keeps working until
// expiry or explicit revocation.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	claims, err := h.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidToken())
		return
	}

	ctx := c.Request.Context()
	hash := token.HashRefreshToken(req.RefreshToken)

	if _, err := h.store.refreshTokens.GetActiveByHash(ctx, hash); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidToken())
		return
	}

	access, err := h.tokens.IssueAccessToken(claims.Subject, "")
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	if !h.rotateRefreshOnUse {
		c.JSON(http.StatusOK, gin.H{"access_token": access})
		return
	}

	tx, err := h.store.refreshTokens.BeginTxx(ctx)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	defer tx.Rollback()

	if err := h.store.refreshTokens.RevokeByHashTx(ctx, tx, hash); err != nil {
		// Lost the rotation race: another request already consumed
		// this refresh token first.
		apperrors.AbortWithError(c, apperrors.InvalidToken())
		return
	}

	newRaw, newHash, newExp, err := h.tokens.IssueRefreshToken(claims.Subject)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := h.store.refreshTokens.Store(ctx, tx, claims.Subject, newHash, newExp); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := tx.Commit(); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": access, "refresh_token": newRaw})
}

// --- /auth/password/reset[/confirm] -----------------------------------------

type passwordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordReset mirrors Register's shape: a code-request step that
// never discloses whether the email is registered.
func (h *Handler) PasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidEmail())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.users.GetByEmail(ctx, req.Email); err == nil {
		code, err := randomSixDigitCode()
		if err != nil {
			apperrors.AbortWithError(c, apperrors.Internal(""))
			return
		}
		if _, err := h.store.codes.Create(ctx, req.Email, code, models.VerificationKindResetPassword, h.codeTTL); err != nil {
			apperrors.AbortWithError(c, apperrors.Internal(""))
			return
		}
		if err := h.mailer.SendPasswordResetCode(ctx, req.Email, code); err != nil {
			logger.Mailer().Warn().Str("email", req.Email).Msg("reset email failed to send")
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type passwordResetConfirmRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6"`
	Salt     string `json:"salt" binding:"required"`
	Verifier string `json:"verifier" binding:"required"`
}

// PasswordResetConfirm consumes the code, replaces (salt, verifier),
// and revokes every outstanding refresh token for the user, all
// atomically.
func (h *Handler) PasswordResetConfirm(c *gin.Context) {
	var req passwordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidRequest(""))
		return
	}

	if appErr := validateSrpMaterial(req.Salt, req.Verifier); appErr != nil {
		apperrors.AbortWithError(c, appErr)
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.users.GetByEmail(ctx, req.Email)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCode())
		return
	}

	tx, err := h.store.users.BeginTxx(ctx)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	defer tx.Rollback()

	if _, err := h.store.codes.ConsumeTx(ctx, tx, req.Email, req.Code, models.VerificationKindResetPassword); err != nil {
		apperrors.AbortWithError(c, apperrors.InvalidCode())
		return
	}
	if err := h.store.users.ReplaceVerifier(ctx, tx, user.ID, req.Salt, req.Verifier); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := h.store.refreshTokens.RevokeAllForUser(ctx, tx, user.ID); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}
	if err := tx.Commit(); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- /auth/captcha -----------------------------------------------------------

// Captcha issues a fresh challenge for the registration flow.
func (h *Handler) Captcha(c *gin.Context) {
	answer, img, err := captcha.Generate()
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	row, err := h.store.captchas.Create(c.Request.Context(), answer, h.captchaTTL)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal(""))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"captcha_id": row.ID,
		"image":      base64.StdEncoding.EncodeToString(img),
	})
}

// issueTokens mints a fresh access+refresh pair for userID/email.
func (h *Handler) issueTokens(userID, email string) (access, refreshRaw, refreshHash string, refreshExp time.Time, err error) {
	access, err = h.tokens.IssueAccessToken(userID, email)
	if err != nil {
		return "", "", "", time.Time{}, err
	}
	refreshRaw, refreshHash, refreshExp, err = h.tokens.IssueRefreshToken(userID)
	return access, refreshRaw, refreshHash, refreshExp, err
}

func dbIsUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505")
}

// validateSrpMaterial rejects trivially malformed (salt, verifier) pairs.
// Real verification of password strength happens client-side; the server
// only refuses material too short to be a plausible SRP derivation.
func validateSrpMaterial(salt, verifier string) *apperrors.AppError {
	if len(salt) < 16 || len(verifier) < 64 {
		return apperrors.WeakPassword()
	}
	if _, err := hex.DecodeString(salt); err != nil {
		return apperrors.WeakPassword()
	}
	if _, err := hex.DecodeString(verifier); err != nil {
		return apperrors.WeakPassword()
	}
	return nil
}
