// Package ratelimit throttles the unauthenticated auth endpoints per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Validate checks that the rule can admit at least one request.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if r.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// Result is the decision for one request.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Counter is the part of the Redis client the fixed window uses.
// *redis.Client satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	client Counter
	prefix string
	rule   Rule
}

// NewRedisLimiter creates a RedisLimiter. Keys are stored under prefix.
func NewRedisLimiter(client Counter, prefix string, rule Rule) (*RedisLimiter, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, prefix: prefix, rule: rule}, nil
}

// Allow increments the window counter for key. The first hit of a window
// sets its expiry; a counter found without one is given one again so a
// failed EXPIRE cannot block a client forever.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.prefix + ":" + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("increment rate counter: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.rule.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set rate window: %w", err)
		}
	}

	if n <= int64(l.rule.Limit) {
		return Result{Allowed: true, Remaining: l.rule.Limit - int(n)}, nil
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("read rate window: %w", err)
	}
	if ttl < 0 {
		if err := l.client.Expire(ctx, k, l.rule.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set rate window: %w", err)
		}
		ttl = l.rule.Window
	}
	return Result{Allowed: false, RetryAfter: ttl}, nil
}
