package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// RefreshTokenRepo handles the refresh_tokens table. Only the SHA-256
// hash of a refresh token's serialized form is ever persisted; the raw
// value exists only in the response that minted it.
type RefreshTokenRepo struct {
	db *sqlx.DB
}

// NewRefreshTokenRepo constructs a RefreshTokenRepo over db.
func NewRefreshTokenRepo(db *sqlx.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

// Store persists a new refresh-token hash for userID, within tx so it
// commits atomically alongside whatever minted it (register-verify,
// login-verify, or rotating refresh).
func (r *RefreshTokenRepo) Store(ctx context.Context, tx *sqlx.Tx, userID, hash string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`,
		uuid.New().String(), userID, hash, expiresAt, time.Now(),
	)
	return err
}

// GetActiveByHash looks up a non-revoked, unexpired refresh token by its
// hash. Returns ErrNotFound if absent, revoked, or expired; refresh
// handlers must not distinguish these cases in their response.
func (r *RefreshTokenRepo) GetActiveByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = false AND expires_at > now()`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RevokeByHashTx marks a single refresh token revoked within tx, the
// precondition-guarded half of rotation. It fails (ErrNotFound) if the
// token was already revoked or used concurrently, which callers treat as
// a rotation race loss.
func (r *RefreshTokenRepo) RevokeByHashTx(ctx context.Context, tx *sqlx.Tx, hash string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = true
		WHERE token_hash = $1 AND revoked = false`, hash)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// BeginTxx starts a transaction for the rotating-refresh path.
func (r *RefreshTokenRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// RevokeAllForUser revokes every outstanding refresh token for userID,
// used on password reset and on admin disable. The auth API has no logout
// endpoint, so no logout path calls it.
func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	return err
}

// DeleteExpiredOrRevoked removes rows the cleanup scheduler no longer
// needs during its sweep.
func (r *RefreshTokenRepo) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < now() OR revoked = true`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
