// Package kv provides small Redis-backed counters used for login
// throttling and temporary account lockout. A nil *Client disables both,
// so single-node deployments work without Redis.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

// New connects to the Redis URL, or returns nil when url is empty.
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// RecordFailure bumps the failed-login counter for the email and returns
// the new count. The counter expires after window.
func (c *Client) RecordFailure(ctx context.Context, email string, window time.Duration) (int64, error) {
	if c == nil {
		return 0, nil
	}
	key := failKey(email)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.rdb.Expire(ctx, key, window).Err()
	}
	return n, nil
}

// ClearFailures resets the counter after a successful login.
func (c *Client) ClearFailures(ctx context.Context, email string) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, failKey(email)).Err()
}

// Lock marks the account locked for the duration.
func (c *Client) Lock(ctx context.Context, email string, d time.Duration) error {
	if c == nil {
		return nil
	}
	return c.rdb.Set(ctx, lockKey(email), "1", d).Err()
}

// Locked reports whether the account is currently locked out. Redis
// errors are treated as not-locked so an outage cannot block all logins.
func (c *Client) Locked(ctx context.Context, email string) bool {
	if c == nil {
		return false
	}
	n, err := c.rdb.Exists(ctx, lockKey(email)).Result()
	return err == nil && n > 0
}

func failKey(email string) string { return fmt.Sprintf("login:fail:%s", email) }
func lockKey(email string) string { return fmt.Sprintf("login:lock:%s", email) }
