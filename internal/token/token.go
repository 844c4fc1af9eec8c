// Package token implements access/refresh JWT issuance and validation:
// access tokens carry {sub, email, iat, exp, jti}; refresh
// tokens carry {sub, iat, exp, jti} and are stored server-side only as a
// SHA-256 hash of their serialized form, never in the clear.
//
// The signing secret is read-mostly, observed by every validation call
// through an atomic.Pointer swapped on admin-triggered rotation.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers malformed tokens and bad signatures.
var ErrInvalidToken = errors.New("token: invalid token")

// ErrExpired covers a structurally valid token whose exp has passed.
var ErrExpired = errors.New("token: expired")

// AccessClaims is the access-token claim shape.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim shape.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// AdminClaims is the admin-token claim shape issued by internal/adminapi:
// {sub, username, iat, exp, jti}. Admin tokens are signed with a secret
// derived from the shared signing secret rather than the secret itself, so
// a token minted for the admin surface can never be replayed as a user
// access token (or vice versa) even though both trace back to one
// rotation: the derivation is a pure function of the current secret, so
// rotating it still invalidates both tiers at once.
type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// adminTokenTTL is fixed rather than config-driven: admin sessions are
// short-lived operator sessions, not the longer-lived end-user access
// tokens the jwt_config row governs.
const adminTokenTTL = 1 * time.Hour

// Manager issues and validates access/refresh tokens against a rotatable
// HS256 secret. TTLs are atomics too, so an admin edit of the jwt_config
// row takes effect on the next issuance without a restart.
type Manager struct {
	secret               atomic.Pointer[string]
	accessTTL            atomic.Int64
	refreshTTL           atomic.Int64
	autoRefreshThreshold atomic.Int64
}

// NewManager creates a Manager with the given initial secret and TTLs.
func NewManager(secret string, accessTTL, refreshTTL, autoRefreshThreshold time.Duration) *Manager {
	m := &Manager{}
	m.secret.Store(&secret)
	m.SetTTLs(accessTTL, refreshTTL, autoRefreshThreshold)
	return m
}

// SetTTLs replaces the issuance TTLs and the auto-refresh threshold.
// Already-issued tokens keep the exp they were minted with.
func (m *Manager) SetTTLs(accessTTL, refreshTTL, autoRefreshThreshold time.Duration) {
	m.accessTTL.Store(int64(accessTTL))
	m.refreshTTL.Store(int64(refreshTTL))
	m.autoRefreshThreshold.Store(int64(autoRefreshThreshold))
}

// RotateSecret swaps in a new signing secret. All tokens signed under
// the previous secret fail validation on their next check.
func (m *Manager) RotateSecret(newSecret string) {
	m.secret.Store(&newSecret)
}

func (m *Manager) currentSecret() []byte {
	return []byte(*m.secret.Load())
}

// IssueAccessToken mints a new access token for userID/email.
func (m *Manager) IssueAccessToken(userID, email string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(m.accessTTL.Load()))),
			ID:        uuid.New().String(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.currentSecret())
}

// IssueRefreshToken mints a new refresh token for userID, returning both
// the raw token (to be returned to the client exactly once) and the
// SHA-256 hash of its serialized form (the only copy persisted).
func (m *Manager) IssueRefreshToken(userID string) (raw string, hash string, expiresAt time.Time, err error) {
	now := time.Now()
	exp := now.Add(time.Duration(m.refreshTTL.Load()))
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err = tok.SignedString(m.currentSecret())
	if err != nil {
		return "", "", time.Time{}, err
	}
	return raw, HashRefreshToken(raw), exp, nil
}

// HashRefreshToken returns the hex-encoded SHA-256 hash of a raw refresh
// token, as stored in the refresh_tokens table.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidateAccessToken parses and verifies tok, rejecting any signing
// method other than HMAC to prevent algorithm-substitution attacks, and
// distinguishing an expired-but-well-formed token from a malformed one.
func (m *Manager) ValidateAccessToken(tok string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.currentSecret(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken parses and verifies a refresh token's signature
// and expiry, but does not consult the database. Callers must
// additionally hash it and check revoked/expires_at server-side.
func (m *Manager) ValidateRefreshToken(tok string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.currentSecret(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// adminSecret derives the admin-token signing key from the current shared
// secret, keeping admin and end-user tokens cryptographically unrelated
// while still rotating together.
func (m *Manager) adminSecret() []byte {
	sum := sha256.Sum256(append(m.currentSecret(), []byte(":admin")...))
	return sum[:]
}

// IssueAdminToken mints a short-lived admin session token for adminID.
func (m *Manager) IssueAdminToken(adminID, username string) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
			ID:        uuid.New().String(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.adminSecret())
}

// ValidateAdminToken parses and verifies an admin session token.
func (m *Manager) ValidateAdminToken(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.adminSecret(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ShouldAutoRefresh reports whether an access token with this expiry is
// close enough to it that the proxy should mint a replacement: strictly
// less than the threshold triggers, equal does not.
func (m *Manager) ShouldAutoRefresh(exp time.Time) bool {
	return time.Until(exp) < time.Duration(m.autoRefreshThreshold.Load())
}
