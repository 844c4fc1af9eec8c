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

// CaptchaRepo handles the captchas table. Generation/rendering lives in
// internal/captcha; this repository only persists and atomically burns
// the answer.
type CaptchaRepo struct {
	db *sqlx.DB
}

// NewCaptchaRepo constructs a CaptchaRepo over db.
func NewCaptchaRepo(db *sqlx.DB) *CaptchaRepo {
	return &CaptchaRepo{db: db}
}

// Create persists a freshly generated challenge answer, good for ttl
// (60 seconds).
func (r *CaptchaRepo) Create(ctx context.Context, answer string, ttl time.Duration) (*models.Captcha, error) {
	c := &models.Captcha{
		ID:        uuid.New().String(),
		Text:      answer,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO captchas (id, text, used, expires_at, created_at)
		VALUES ($1, $2, false, $3, $4)`, c.ID, c.Text, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyAndBurn atomically marks a captcha used and reports whether
// submittedText matched (case-insensitive), all in a single
// UPDATE ... WHERE used = false AND expires_at > now() RETURNING
// statement. An unexpired, unburned row is burned by its first attempt
// whether or not the text matches; a wrong id, an already-used row, or an
// expired row matches nothing and is reported as a failure.
func (r *CaptchaRepo) VerifyAndBurn(ctx context.Context, id, submittedText string) (ok bool, err error) {
	var storedText string
	err = r.db.GetContext(ctx, &storedText, `
		UPDATE captchas SET used = true
		WHERE id = $1 AND used = false AND expires_at > now()
		RETURNING text`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(storedText, submittedText), nil
}

// DeleteExpiredOrUsed removes rows the cleanup scheduler no longer needs
// during its sweep.
func (r *CaptchaRepo) DeleteExpiredOrUsed(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM captchas WHERE expires_at < now() OR used = true`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
