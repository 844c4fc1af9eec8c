// Package cache provides an optional Redis pub/sub channel the admin API
// uses to broadcast configuration changes (route table edits, rate-limit
// rule edits, JWT secret rotation) to every gateway process sharing one
// database, so each instance's in-memory snapshot stays in sync without
// a restart and the proxy observes a rotated secret within a bounded
// window.
//
// This is deliberately not a generic key/value cache: the gateway's actual
// hot-path state (route table, rate-limit counters, JWT secret) already
// lives behind atomic in-process pointers (internal/proxy.RouteCache,
// internal/ratelimiter.RuleSet, internal/token.Manager); Redis here only
// carries the "something changed, go reread the database" signal between
// processes. A disabled cache (the common single-instance deployment)
// makes every method a safe no-op; each subsystem's own periodic
// poller/reload is what keeps a lone instance's snapshot fresh either way.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arc-auth/gateway/internal/logger"
)

// Cache wraps a Redis client used only for pub/sub invalidation signals.
type Cache struct {
	client *redis.Client
}

// Config holds cache connection settings.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Channel names for the invalidation signals the admin API publishes on
// mutation (see internal/adminapi).
const (
	ChannelRoutesChanged    = "arc_auth:routes_changed"
	ChannelRateLimitChanged = "arc_auth:ratelimit_changed"
	ChannelSecretRotated    = "arc_auth:secret_rotated"
)

// NewCache creates a Redis client for pub/sub. If config.Enabled is false,
// it returns a Cache whose methods are all no-ops rather than nil, so
// callers never need a presence check.
func NewCache(config Config) (*Cache, error) {
	if !config.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsEnabled reports whether pub/sub is backed by a live Redis connection.
func (c *Cache) IsEnabled() bool {
	return c.client != nil
}

// Publish broadcasts an invalidation signal on channel. A no-op when
// disabled: the caller's own in-process mutation already took effect
// locally, and there is no other process to tell.
func (c *Cache) Publish(ctx context.Context, channel string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.client.Publish(ctx, channel, "1").Err(); err != nil {
		logUnavailable("publish:"+channel, err)
		return err
	}
	return nil
}

// Subscribe runs handler every time a message arrives on channel, until ctx
// is canceled or the subscription breaks. A no-op when disabled, so
// callers must not rely on Subscribe alone and should still keep their own
// periodic poller (the route cache's RefreshInterval, the rate-limit rule
// reload) as the path that works even single-instance.
func (c *Cache) Subscribe(ctx context.Context, channel string, handler func()) {
	if !c.IsEnabled() {
		return
	}

	sub := c.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			handler()
		}
	}
}

// logUnavailable logs a non-fatal Publish failure without interrupting
// the caller; Subscribe does not report through it. Invalidation signaling is an
// optimization, not a correctness requirement, given each subsystem's own
// poller.
func logUnavailable(op string, err error) {
	logger.GetLogger().Warn().Err(err).Str("op", op).Msg("cache pub/sub unavailable")
}
