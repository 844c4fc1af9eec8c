// Package models holds the entity structs persisted by internal/db and
// exchanged between the auth API, the admin API, and the edge proxy.
package models

import (
	"database/sql"
	"time"
)

// User is an end-user account authenticated via SRP-6a. The server never
// stores or derives a password; Salt and Verifier are exactly what the
// client supplied at registration or the last password reset.
type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Salt          string    `db:"salt" json:"-"`
	Verifier      string    `db:"verifier" json:"-"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// VerificationCodeKind distinguishes the two flows that share the
// verification_codes table.
type VerificationCodeKind string

const (
	VerificationKindRegister      VerificationCodeKind = "register"
	VerificationKindResetPassword VerificationCodeKind = "reset_password"
)

// VerificationCode is a single-use, time-boxed 6-digit code mailed to the
// user during registration or password reset.
type VerificationCode struct {
	ID        string               `db:"id" json:"id"`
	Email     string               `db:"email" json:"email"`
	Code      string               `db:"code" json:"-"`
	Kind      VerificationCodeKind `db:"kind" json:"kind"`
	ExpiresAt time.Time            `db:"expires_at" json:"expires_at"`
	Used      bool                 `db:"used" json:"used"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// SrpSession is an in-progress login handshake. It is consumed (deleted)
// atomically by the verify leg; there is never a successful second verify
// for a given session id. UserID is NULL for the synthetic sessions the
// enumeration-resistant login/init branch creates for unknown emails.
type SrpSession struct {
	ID              string         `db:"id" json:"session_id"`
	UserID          sql.NullString `db:"user_id" json:"-"`
	ServerEphemeral string         `db:"server_ephemeral" json:"-"`
	ClientPublic    string         `db:"client_public" json:"-"`
	ExpiresAt       time.Time      `db:"expires_at" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"-"`
}

// RefreshToken is stored only by hash; the raw token exists only in the
// response that minted it.
type RefreshToken struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Revoked   bool      `db:"revoked" json:"revoked"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Admin is an operator account. Unlike User, admins authenticate with an
// Argon2-hashed password; SRP is an end-user-only mechanism.
type Admin struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AdminRegistrationToken is a single-use bootstrap credential that lets the
// first (or an additional) admin account be created out of band.
type AdminRegistrationToken struct {
	Hash      string     `db:"hash" json:"-"`
	Used      bool       `db:"used" json:"used"`
	UsedBy    *string    `db:"used_by" json:"used_by,omitempty"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// ApiKey is a machine credential. The hash is the sole persisted form; the
// 8-char Prefix exists only so admins can identify a key in listings.
type ApiKey struct {
	ID          string    `db:"id" json:"id"`
	AdminID     string    `db:"admin_id" json:"admin_id"`
	Name        string    `db:"name" json:"name"`
	KeyHash     string    `db:"key_hash" json:"-"`
	Prefix      string    `db:"prefix" json:"prefix"`
	Permissions []string  `db:"-" json:"permissions"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasPermission reports whether the key carries perm, honoring the "*"
// wildcard that grants every permission.
func (k ApiKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == "*" || p == perm {
			return true
		}
	}
	return false
}

// Captcha is a short-lived challenge burned atomically on first use,
// success or failure.
type Captcha struct {
	ID        string    `db:"id" json:"id"`
	Text      string    `db:"text" json:"-"`
	Used      bool      `db:"used" json:"used"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProxyRoute is an admin-managed mapping from a path prefix to an
// upstream, CRUD'd via the admin API and cache-refreshed on change.
type ProxyRoute struct {
	ID          string    `db:"id" json:"id"`
	Path        string    `db:"path" json:"path"`
	Upstream    string    `db:"upstream" json:"upstream"`
	RequireAuth bool      `db:"require_auth" json:"require_auth"`
	StripPrefix string    `db:"strip_prefix" json:"strip_prefix,omitempty"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RateLimitDimension is the key dimension a RateLimitRule counts by.
type RateLimitDimension string

const (
	DimensionIP    RateLimitDimension = "ip"
	DimensionEmail RateLimitDimension = "email"
	DimensionUser  RateLimitDimension = "user"
)

// RateLimitRule is an admin-managed sliding-window rule.
type RateLimitRule struct {
	ID          string             `db:"id" json:"id"`
	Name        string             `db:"name" json:"name"`
	PathPattern string             `db:"path_pattern" json:"path_pattern"`
	Dimension   RateLimitDimension `db:"key_dimension" json:"key_dimension"`
	MaxRequests int                `db:"max_requests" json:"max_requests"`
	WindowSecs  int                `db:"window_secs" json:"window_secs"`
	Enabled     bool               `db:"enabled" json:"enabled"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// JwtConfig is the singleton row holding token TTLs and the current
// signing secret. Rotating Secret invalidates every outstanding token.
type JwtConfig struct {
	AccessTokenTTL       int       `db:"access_token_ttl_secs" json:"access_token_ttl_secs"`
	RefreshTokenTTL      int       `db:"refresh_token_ttl_secs" json:"refresh_token_ttl_secs"`
	AutoRefreshThreshold int       `db:"auto_refresh_threshold_secs" json:"auto_refresh_threshold_secs"`
	Secret               string    `db:"secret" json:"-"`
	SecretUpdatedAt      time.Time `db:"secret_updated_at" json:"secret_updated_at"`
	RotateRefreshOnUse   bool      `db:"rotate_refresh_on_use" json:"rotate_refresh_on_use"`
}

// SmtpConfig is the singleton row holding outbound mail settings.
type SmtpConfig struct {
	Host     string `db:"host" json:"host"`
	Port     int    `db:"port" json:"port"`
	User     string `db:"smtp_user" json:"smtp_user"`
	Pass     string `db:"smtp_pass" json:"-"`
	From     string `db:"from_address" json:"from_address"`
	FromName string `db:"from_name" json:"from_name"`
}
