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

// VerificationCodeRepo handles the verification_codes table shared by
// register and password-reset flows.
type VerificationCodeRepo struct {
	db *sqlx.DB
}

// NewVerificationCodeRepo constructs a VerificationCodeRepo over db.
func NewVerificationCodeRepo(db *sqlx.DB) *VerificationCodeRepo {
	return &VerificationCodeRepo{db: db}
}

// Create persists a freshly generated code for email, good for ttl.
func (r *VerificationCodeRepo) Create(ctx context.Context, email, code string, kind models.VerificationCodeKind, ttl time.Duration) (*models.VerificationCode, error) {
	vc := &models.VerificationCode{
		ID:        uuid.New().String(),
		Email:     normalizeEmail(email),
		Code:      code,
		Kind:      kind,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes (id, email, code, kind, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)`,
		vc.ID, vc.Email, vc.Code, vc.Kind, vc.ExpiresAt, vc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// ConsumeTx atomically marks the most recent unused, unexpired code for
// (email, kind, code) as used and returns it, within tx. The UPDATE's
// WHERE clause is the entire precondition (never read-then-write), so a
// code's used flag can flip at most once.
func (r *VerificationCodeRepo) ConsumeTx(ctx context.Context, tx *sqlx.Tx, email, code string, kind models.VerificationCodeKind) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	err := tx.GetContext(ctx, &vc, `
		UPDATE verification_codes
		SET used = true
		WHERE id = (
			SELECT id FROM verification_codes
			WHERE email = $1 AND code = $2 AND kind = $3
			  AND used = false AND expires_at > now()
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING *`,
		normalizeEmail(email), code, kind,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// DeleteExpiredAndUsed removes rows the cleanup scheduler no longer needs
// during its sweep: expired OR already used.
func (r *VerificationCodeRepo) DeleteExpiredAndUsed(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at < now() OR used = true`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
