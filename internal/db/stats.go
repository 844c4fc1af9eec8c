package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Overview is the counter set the admin dashboard's stats endpoint
// renders.
type Overview struct {
	Users               int `db:"users" json:"users"`
	ActiveUsers         int `db:"active_users" json:"active_users"`
	Routes              int `db:"routes" json:"routes"`
	RateLimitRules      int `db:"rate_limit_rules" json:"rate_limit_rules"`
	ApiKeys             int `db:"api_keys" json:"api_keys"`
	ActiveRefreshTokens int `db:"active_refresh_tokens" json:"active_refresh_tokens"`
}

// StatsRepo aggregates read-only counters across the gateway's tables.
type StatsRepo struct {
	db *sqlx.DB
}

// NewStatsRepo constructs a StatsRepo over db.
func NewStatsRepo(db *sqlx.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// Overview returns the dashboard counters in one round-trip.
func (r *StatsRepo) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	err := r.db.GetContext(ctx, &o, `
		SELECT
			(SELECT count(*) FROM users)                                                        AS users,
			(SELECT count(*) FROM users WHERE is_active = true)                                 AS active_users,
			(SELECT count(*) FROM proxy_routes)                                                 AS routes,
			(SELECT count(*) FROM rate_limit_rules)                                             AS rate_limit_rules,
			(SELECT count(*) FROM api_keys)                                                     AS api_keys,
			(SELECT count(*) FROM refresh_tokens WHERE revoked = false AND expires_at > now())  AS active_refresh_tokens`)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
