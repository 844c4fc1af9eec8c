package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// SmtpConfigRepo handles the smtp_config singleton row.
type SmtpConfigRepo struct {
	db *sqlx.DB
}

// NewSmtpConfigRepo constructs a SmtpConfigRepo over db.
func NewSmtpConfigRepo(db *sqlx.DB) *SmtpConfigRepo {
	return &SmtpConfigRepo{db: db}
}

// EnsureSeeded inserts an empty singleton row if one does not already
// exist, so Get never has to special-case a missing row.
func (r *SmtpConfigRepo) EnsureSeeded(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO smtp_config (id) VALUES (1)
		ON CONFLICT (id) DO NOTHING`)
	return err
}

// Get returns the singleton config row.
func (r *SmtpConfigRepo) Get(ctx context.Context) (*models.SmtpConfig, error) {
	var c models.SmtpConfig
	if err := r.db.GetContext(ctx, &c, `
		SELECT host, port, smtp_user, smtp_pass, from_address, from_name
		FROM smtp_config WHERE id = 1`); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update replaces the singleton row's fields.
func (r *SmtpConfigRepo) Update(ctx context.Context, c models.SmtpConfig) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE smtp_config
		SET host = $1, port = $2, smtp_user = $3, smtp_pass = $4, from_address = $5, from_name = $6
		WHERE id = 1`,
		c.Host, c.Port, c.User, c.Pass, c.From, c.FromName,
	)
	return err
}
