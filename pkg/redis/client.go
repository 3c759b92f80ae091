// Package redis wraps go-redis with the namespaced keys the showroom uses for
// access sessions, auth throttling, idempotent replays and guest device storage.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/logger"
)

// Key families. Every key is "sr:<family>:<parts...>".
const (
	keyNamespace      = "sr"
	idempotencyFamily = "idempotency"
	rateLimitFamily   = "rate_limit"
	sessionFamily     = "session"
	localStoreFamily  = "local"
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// fixedWindow increments the counter and starts its window on the first hit
// in one round trip, so a crash between INCR and PEXPIRE cannot leave a
// counter that never expires.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Client is the showroom handle over one go-redis connection pool.
type Client struct {
	raw *redis.Client
}

// IdempotencyStore is what the replay middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// New dials cfg.URL with the configured pool and timeouts and pings it.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis.connected")
	}
	return &Client{raw: raw}, nil
}

// DialURL connects using a bare redis:// URL. Used by the shopper CLI.
func DialURL(ctx context.Context, url string) (*Client, error) {
	return New(ctx, config.RedisConfig{URL: url}, nil)
}

// FromRaw wraps an existing go-redis client.
func FromRaw(raw *redis.Client) *Client {
	return &Client{raw: raw}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Values embedded in the URL win over the discrete settings.
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	overridePositive(&opts.PoolSize, cfg.PoolSize)
	overridePositive(&opts.MinIdleConns, cfg.MinIdleConns)
	overridePositive(&opts.DialTimeout, cfg.DialTimeout)
	overridePositive(&opts.ReadTimeout, cfg.ReadTimeout)
	overridePositive(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func overridePositive[T int | time.Duration](dst *T, value T) {
	if value > 0 {
		*dst = value
	}
}

func (c *Client) conn() (*redis.Client, error) {
	if c == nil || c.raw == nil {
		return nil, errNotInitialized
	}
	return c.raw, nil
}

// Set stores value at key. A zero ttl keeps the key until deleted.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Set(ctx, key, value, ttl).Err()
}

// Get returns the string at key, or Nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	conn, err := c.conn()
	if err != nil {
		return "", err
	}
	return conn.Get(ctx, key).Result()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	conn, err := c.conn()
	if err != nil {
		return false, err
	}
	return conn.SetNX(ctx, key, value, ttl).Result()
}

// Del removes keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one attempt against scope and reports whether the
// count is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	conn, err := c.conn()
	if err != nil {
		return false, 0, err
	}
	count, err := fixedWindow.Run(ctx, conn, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return count <= limit, count, nil
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyFamily, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitFamily, scope)
}

// AccessSessionKey is the key of the session record for an access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey(sessionFamily, "access", accessID)
}

// LocalStoreKey namespaces a guest device storage key per visitor.
func (c *Client) LocalStoreKey(visitorID, key string) string {
	return buildKey(localStoreFamily, visitorID, key)
}

// Ping satisfies the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Ping(ctx).Err()
}

// Close releases the pool. Closing an uninitialized client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// buildKey joins non-blank parts under the namespace.
func buildKey(parts ...string) string {
	key := keyNamespace
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			key += ":" + part
		}
	}
	return key
}
