package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// AdminRepo handles the admins and admin_registration_tokens tables.
// Admin auth stays Argon2-hashed password+username, never sharing a code
// path with the SRP-only end-user flow.
type AdminRepo struct {
	db *sqlx.DB
}

// NewAdminRepo constructs an AdminRepo over db.
func NewAdminRepo(db *sqlx.DB) *AdminRepo {
	return &AdminRepo{db: db}
}

// Count returns how many admin accounts exist, consulted at startup to
// decide whether a bootstrap registration token is needed.
func (r *AdminRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM admins`); err != nil {
		return 0, err
	}
	return n, nil
}

// HasUnusedRegistrationToken reports whether an unexpired, unused
// bootstrap token is already outstanding, so repeated restarts of a
// fresh deployment don't mint a new token each time.
func (r *AdminRepo) HasUnusedRegistrationToken(ctx context.Context) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT count(*) FROM admin_registration_tokens
		WHERE used = false AND expires_at > now()`)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByUsername looks up an admin by username.
func (r *AdminRepo) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var a models.Admin
	err := r.db.GetContext(ctx, &a, `SELECT * FROM admins WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID looks up an admin by id.
func (r *AdminRepo) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	var a models.Admin
	err := r.db.GetContext(ctx, &a, `SELECT * FROM admins WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// hashRegistrationToken hashes a bootstrap token the same way its raw
// value was handed out, so RedeemRegistrationTokenTx can match on the hash alone.
func hashRegistrationToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateRegistrationToken issues a fresh single-use bootstrap token valid
// for ttl, returning its raw value (handed out once, e.g. printed to an
// operator's terminal at first boot); only the token's hash is persisted.
func (r *AdminRepo) CreateRegistrationToken(ctx context.Context, ttl time.Duration) (raw string, err error) {
	raw = uuid.New().String() + uuid.New().String()
	hash := hashRegistrationToken(raw)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO admin_registration_tokens (hash, used, expires_at)
		VALUES ($1, false, $2)`, hash, time.Now().Add(ttl))
	if err != nil {
		return "", err
	}
	return raw, nil
}

// RedeemRegistrationTokenTx atomically burns a bootstrap token and
// creates the admin account it authorizes, within tx. The burn is a
// single precondition-guarded UPDATE, never read-then-write.
func (r *AdminRepo) RedeemRegistrationTokenTx(ctx context.Context, tx *sqlx.Tx, rawToken, username, passwordHash string) (*models.Admin, error) {
	hash := hashRegistrationToken(rawToken)

	var tokHash string
	err := tx.GetContext(ctx, &tokHash, `
		UPDATE admin_registration_tokens
		SET used = true, used_by = $1, used_at = now()
		WHERE hash = $2 AND used = false AND expires_at > now()
		RETURNING hash`, username, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a := &models.Admin{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO admins (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Username, a.PasswordHash, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BeginTxx starts a transaction for the registration-token redeem path.
func (r *AdminRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
