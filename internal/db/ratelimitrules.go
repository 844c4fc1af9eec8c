package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// RateLimitRuleRepo handles the rate_limit_rules table, the
// admin-overridable rule set behind the sliding-window limiter.
type RateLimitRuleRepo struct {
	db *sqlx.DB
}

// NewRateLimitRuleRepo constructs a RateLimitRuleRepo over db.
func NewRateLimitRuleRepo(db *sqlx.DB) *RateLimitRuleRepo {
	return &RateLimitRuleRepo{db: db}
}

// ListEnabled returns every enabled rule, for the rate limiter to
// evaluate per request.
func (r *RateLimitRuleRepo) ListEnabled(ctx context.Context) ([]models.RateLimitRule, error) {
	var rules []models.RateLimitRule
	err := r.db.SelectContext(ctx, &rules,
		`SELECT * FROM rate_limit_rules WHERE enabled = true ORDER BY created_at ASC`)
	return rules, err
}

// ListAll returns every rule for the admin API's CRUD listing.
func (r *RateLimitRuleRepo) ListAll(ctx context.Context) ([]models.RateLimitRule, error) {
	var rules []models.RateLimitRule
	err := r.db.SelectContext(ctx, &rules, `SELECT * FROM rate_limit_rules ORDER BY created_at ASC`)
	return rules, err
}

// Create persists a new rule.
func (r *RateLimitRuleRepo) Create(ctx context.Context, rule models.RateLimitRule) (*models.RateLimitRule, error) {
	rule.ID = uuid.New().String()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_limit_rules (id, name, path_pattern, key_dimension, max_requests, window_secs, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID, rule.Name, rule.PathPattern, rule.Dimension, rule.MaxRequests, rule.WindowSecs,
		rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update replaces a rule's mutable fields by id.
func (r *RateLimitRuleRepo) Update(ctx context.Context, rule models.RateLimitRule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rate_limit_rules
		SET name = $1, path_pattern = $2, key_dimension = $3, max_requests = $4, window_secs = $5, enabled = $6, updated_at = now()
		WHERE id = $7`,
		rule.Name, rule.PathPattern, rule.Dimension, rule.MaxRequests, rule.WindowSecs, rule.Enabled, rule.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// Delete removes a rule by id.
func (r *RateLimitRuleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limit_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// SeedDefaults inserts the baseline rule table if no rules exist
// yet, so a fresh deployment enforces the documented limits before an
// admin ever touches the CRUD surface.
func (r *RateLimitRuleRepo) SeedDefaults(ctx context.Context) error {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM rate_limit_rules`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []models.RateLimitRule{
		{Name: "register-ip", PathPattern: "POST /auth/register", Dimension: models.DimensionIP, MaxRequests: 5, WindowSecs: 3600, Enabled: true},
		{Name: "register-email", PathPattern: "POST /auth/register", Dimension: models.DimensionEmail, MaxRequests: 1, WindowSecs: 60, Enabled: true},
		{Name: "login-ip", PathPattern: "POST /auth/login/*", Dimension: models.DimensionIP, MaxRequests: 10, WindowSecs: 60, Enabled: true},
		{Name: "login-email", PathPattern: "POST /auth/login/*", Dimension: models.DimensionEmail, MaxRequests: 5, WindowSecs: 300, Enabled: true},
		{Name: "reset-ip", PathPattern: "POST /auth/password/reset", Dimension: models.DimensionIP, MaxRequests: 3, WindowSecs: 600, Enabled: true},
		{Name: "reset-email", PathPattern: "POST /auth/password/reset", Dimension: models.DimensionEmail, MaxRequests: 1, WindowSecs: 60, Enabled: true},
		{Name: "refresh-user", PathPattern: "POST /auth/refresh", Dimension: models.DimensionUser, MaxRequests: 60, WindowSecs: 60, Enabled: true},
	}
	for _, d := range defaults {
		if _, err := r.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
