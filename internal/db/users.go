// Package db provides PostgreSQL access for the gateway's persistent
// entities: users, verification codes, SRP sessions, refresh tokens,
// admins, API keys, captchas, proxy routes, rate-limit rules, and the
// JWT/SMTP singleton config rows. Each entity group gets its own
// repository type over the shared *sqlx.DB.
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// ErrNotFound is returned by lookups that found no matching row.
var ErrNotFound = errors.New("db: not found")

// UserRepo handles CRUD for the users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo over db.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user with the supplied SRP (salt, verifier),
// normalizing the email so uniqueness is case-insensitive. Callers map a
// duplicate email via IsUniqueViolation.
func (r *UserRepo) Create(ctx context.Context, email, salt, verifier string) (*models.User, error) {
	u := &models.User{
		ID:            uuid.New().String(),
		Email:         normalizeEmail(email),
		Salt:          salt,
		Verifier:      verifier,
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, salt, verifier, email_verified, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Salt, u.Verifier, u.EmailVerified, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateTx is Create run against an existing transaction, so
// register-verify can create the user and consume its verification code
// atomically.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, email, salt, verifier string) (*models.User, error) {
	u := &models.User{
		ID:            uuid.New().String(),
		Email:         normalizeEmail(email),
		Salt:          salt,
		Verifier:      verifier,
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, salt, verifier, email_verified, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Salt, u.Verifier, u.EmailVerified, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail looks up a user by normalized email. Returns ErrNotFound if
// absent. Callers on the enumeration-sensitive paths (login/init,
// password/reset) must not let this distinction leak to the client.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID looks up a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns users, most recently created first, for the admin API's
// user-management surface.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	return users, err
}

// SetActive enables or disables a user account (admin-only).
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// Delete removes a user row. Dependent refresh_tokens cascade via the
// foreign key; srp_sessions and verification_codes are swept by
// internal/scheduler rather than deleted here.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// ReplaceVerifier atomically swaps a user's (salt, verifier) in place
// for the password-reset confirm step. There is no plaintext password
// server-side to touch.
func (r *UserRepo) ReplaceVerifier(ctx context.Context, tx *sqlx.Tx, userID, salt, verifier string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET salt = $1, verifier = $2, updated_at = now() WHERE id = $3`,
		salt, verifier, userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// BeginTxx starts a transaction for callers that need to span repositories
// (e.g. register-verify: consume code + create user + store refresh hash).
func (r *UserRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), used to map a duplicate email or duplicate
// username insert to EMAIL_EXISTS without a pre-check read-then-write
// race.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
