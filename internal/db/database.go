// Package db provides PostgreSQL database access and schema migration for
// the gateway.
//
// Features:
// - Connection pooling with configurable limits
// - Lexicographic, embedded SQL migrations (see migrate.go)
// - Health check via Ping
// - Configuration validation (rejects malformed hosts/ports before dialing)
package db

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds database connection settings.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	ConnMaxIdle  time.Duration
}

// validateConfig rejects a malformed DSN before it reaches the driver,
// so a bad config.toml or env override fails fast with a clear error
// instead of a confusing driver-level one.
func validateConfig(config Config) error {
	if config.URL == "" {
		return fmt.Errorf("database URL cannot be empty")
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("invalid database URL scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("database URL missing host")
	}
	if net.ParseIP(host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(host) {
			return fmt.Errorf("invalid database host: %s", host)
		}
	}

	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("invalid database port: %s (must be 1-65535)", port)
		}
	}

	return nil
}

// Database wraps a pooled PostgreSQL connection. The repositories under
// internal/db query it through its sqlx handle for Get/Select convenience;
// Migrate and health checks use the plain *sql.DB beneath it.
type Database struct {
	db *sqlx.DB
}

// NewDatabase opens and validates a connection pool for config.
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sqlx.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 10
	}
	maxIdle := config.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = maxOpen / 2
		if maxIdle == 0 {
			maxIdle = 1
		}
	}
	connMaxLife := config.ConnMaxLife
	if connMaxLife == 0 {
		connMaxLife = 5 * time.Minute
	}
	connMaxIdle := config.ConnMaxIdle
	if connMaxIdle == 0 {
		connMaxIdle = 1 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLife)
	db.SetConnMaxIdleTime(connMaxIdle)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabaseForTesting wraps an existing *sql.DB, for injecting sqlmock
// in unit tests. DO NOT use in production code; use NewDatabase instead.
func NewDatabaseForTesting(db *sql.DB) *Database {
	return &Database{db: sqlx.NewDb(db, "postgres")}
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying *sqlx.DB for use by the entity repositories.
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Ping checks database connectivity for health endpoints.
func (d *Database) Ping() error {
	return d.db.Ping()
}
