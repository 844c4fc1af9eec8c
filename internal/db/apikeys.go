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

// ApiKeyRepo handles the api_keys table. The raw key is
// returned exactly once, at creation; only its hash and an informational
// prefix are ever persisted.
type ApiKeyRepo struct {
	db *sqlx.DB
}

// NewApiKeyRepo constructs an ApiKeyRepo over db.
func NewApiKeyRepo(db *sqlx.DB) *ApiKeyRepo {
	return &ApiKeyRepo{db: db}
}

// Create persists a new key row for adminID, owning the name and
// permission set an admin assigned it. The caller supplies the
// already-computed hash/prefix (see internal/auth.GenerateAPIKey for generation).
func (r *ApiKeyRepo) Create(ctx context.Context, adminID, name, hash, prefix string, permissions []string) (*models.ApiKey, error) {
	k := &models.ApiKey{
		ID:          uuid.New().String(),
		AdminID:     adminID,
		Name:        name,
		KeyHash:     hash,
		Prefix:      prefix,
		Permissions: permissions,
		CreatedAt:   time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, admin_id, name, key_hash, prefix, permissions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		k.ID, k.AdminID, k.Name, k.KeyHash, k.Prefix, strings.Join(permissions, ","), k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// row mirrors api_keys' column layout for sqlx scanning; Permissions is
// stored as a comma-joined string, not models.ApiKey's []string field.
type apiKeyRow struct {
	ID          string    `db:"id"`
	AdminID     string    `db:"admin_id"`
	Name        string    `db:"name"`
	KeyHash     string    `db:"key_hash"`
	Prefix      string    `db:"prefix"`
	Permissions string    `db:"permissions"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row apiKeyRow) toModel() models.ApiKey {
	var perms []string
	if row.Permissions != "" {
		perms = strings.Split(row.Permissions, ",")
	}
	return models.ApiKey{
		ID:          row.ID,
		AdminID:     row.AdminID,
		Name:        row.Name,
		KeyHash:     row.KeyHash,
		Prefix:      row.Prefix,
		Permissions: perms,
		CreatedAt:   row.CreatedAt,
	}
}

// GetByHash looks up an API key by its SHA-256 hash, as consulted by the
// edge proxy on every X-API-Key request.
func (r *ApiKeyRepo) GetByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	var row apiKeyRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM api_keys WHERE key_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k := row.toModel()
	return &k, nil
}

// ListByAdmin returns every key an admin owns, for the admin API's
// key-management listing.
func (r *ApiKeyRepo) ListByAdmin(ctx context.Context, adminID string) ([]models.ApiKey, error) {
	var rows []apiKeyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM api_keys WHERE admin_id = $1 ORDER BY created_at DESC`, adminID)
	if err != nil {
		return nil, err
	}
	keys := make([]models.ApiKey, len(rows))
	for i, row := range rows {
		keys[i] = row.toModel()
	}
	return keys, nil
}

// Delete removes a key owned by adminID, scoped so one admin cannot
// delete another's key by guessing its id.
func (r *ApiKeyRepo) Delete(ctx context.Context, adminID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND admin_id = $2`, id, adminID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}
