// Package redisclient wraps a Redis connection used as a best-effort
// fast path in front of the ledger's Postgres-backed idempotency check:
// a SETNX on the idempotency key lets a hot retry short-circuit before
// ever opening a transaction. Postgres' unique constraint on
// ledger_entries.idempotency_key remains the source of truth — Redis
// being unavailable or evicting a key never causes a double charge,
// it only loses the fast-path optimization.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/levee-labs/credit-gateway/config"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}

// MarkIdempotencyKeySeen records that idempotencyKey has been observed,
// returning true if this is the first time it's been seen within ttl.
// A Redis error is treated as "not seen" so the caller always falls
// through to the authoritative Postgres check.
func (r *Client) MarkIdempotencyKeySeen(ctx context.Context, idempotencyKey string, ttl time.Duration) bool {
	ok, err := r.c.SetNX(ctx, "idem:"+idempotencyKey, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
