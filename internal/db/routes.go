package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// RouteRepo handles the proxy_routes table, the dynamic half of
// internal/proxy's route cache.
type RouteRepo struct {
	db *sqlx.DB
}

// NewRouteRepo constructs a RouteRepo over db.
func NewRouteRepo(db *sqlx.DB) *RouteRepo {
	return &RouteRepo{db: db}
}

// ListEnabled returns every enabled dynamic route, for the route cache
// to rebuild its effective list from. Disabled routes never reach the
// proxy.
func (r *RouteRepo) ListEnabled(ctx context.Context) ([]models.ProxyRoute, error) {
	var routes []models.ProxyRoute
	err := r.db.SelectContext(ctx, &routes,
		`SELECT * FROM proxy_routes WHERE enabled = true ORDER BY created_at ASC`)
	return routes, err
}

// ListAll returns every route regardless of enabled state, for the admin
// API's CRUD listing.
func (r *RouteRepo) ListAll(ctx context.Context) ([]models.ProxyRoute, error) {
	var routes []models.ProxyRoute
	err := r.db.SelectContext(ctx, &routes, `SELECT * FROM proxy_routes ORDER BY created_at ASC`)
	return routes, err
}

// Create persists a new dynamic route.
func (r *RouteRepo) Create(ctx context.Context, route models.ProxyRoute) (*models.ProxyRoute, error) {
	route.ID = uuid.New().String()
	route.CreatedAt = time.Now()
	route.UpdatedAt = route.CreatedAt
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proxy_routes (id, path, upstream, require_auth, strip_prefix, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		route.ID, route.Path, route.Upstream, route.RequireAuth, route.StripPrefix, route.Enabled,
		route.CreatedAt, route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// Update replaces a route's mutable fields by id.
func (r *RouteRepo) Update(ctx context.Context, route models.ProxyRoute) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proxy_routes
		SET path = $1, upstream = $2, require_auth = $3, strip_prefix = $4, enabled = $5, updated_at = now()
		WHERE id = $6`,
		route.Path, route.Upstream, route.RequireAuth, route.StripPrefix, route.Enabled, route.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// Delete removes a dynamic route by id.
func (r *RouteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM proxy_routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}
