package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// JwtConfigRepo handles the jwt_config singleton row. The signing secret
// lives only here; it is never written to config/default.toml or any
// other plaintext file.
type JwtConfigRepo struct {
	db *sqlx.DB
}

// NewJwtConfigRepo constructs a JwtConfigRepo over db.
func NewJwtConfigRepo(db *sqlx.DB) *JwtConfigRepo {
	return &JwtConfigRepo{db: db}
}

// EnsureSeeded inserts the singleton row with a freshly generated random
// secret and the given TTL defaults if it does not already exist, so a
// first boot never runs with an empty or predictable secret.
func (r *JwtConfigRepo) EnsureSeeded(ctx context.Context, accessTTL, refreshTTL, autoRefreshThreshold time.Duration) error {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM jwt_config`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jwt_config (id, access_token_ttl_secs, refresh_token_ttl_secs, auto_refresh_threshold_secs, secret, secret_updated_at, rotate_refresh_on_use)
		VALUES (1, $1, $2, $3, $4, now(), true)`,
		int(accessTTL.Seconds()), int(refreshTTL.Seconds()), int(autoRefreshThreshold.Seconds()), secret,
	)
	return err
}

// Get returns the singleton config row.
func (r *JwtConfigRepo) Get(ctx context.Context) (*models.JwtConfig, error) {
	var c models.JwtConfig
	if err := r.db.GetContext(ctx, &c, `
		SELECT access_token_ttl_secs, refresh_token_ttl_secs, auto_refresh_threshold_secs,
		       secret, secret_updated_at, rotate_refresh_on_use
		FROM jwt_config WHERE id = 1`); err != nil {
		return nil, err
	}
	return &c, nil
}

// RotateSecret replaces the signing secret with a new random value and
// bumps secret_updated_at, invalidating every outstanding token on its
// next validation.
func (r *JwtConfigRepo) RotateSecret(ctx context.Context) (newSecret string, err error) {
	newSecret, err = randomSecret()
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE jwt_config SET secret = $1, secret_updated_at = now() WHERE id = 1`, newSecret)
	if err != nil {
		return "", err
	}
	return newSecret, nil
}

// UpdateTTLs updates the access/refresh TTLs and auto-refresh threshold
// without touching the secret.
func (r *JwtConfigRepo) UpdateTTLs(ctx context.Context, accessTTL, refreshTTL, autoRefreshThreshold time.Duration, rotateRefreshOnUse bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jwt_config
		SET access_token_ttl_secs = $1, refresh_token_ttl_secs = $2, auto_refresh_threshold_secs = $3, rotate_refresh_on_use = $4
		WHERE id = 1`,
		int(accessTTL.Seconds()), int(refreshTTL.Seconds()), int(autoRefreshThreshold.Seconds()), rotateRefreshOnUse,
	)
	return err
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
