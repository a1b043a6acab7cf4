package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, rule Rule) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l, err := NewRedisLimiter(client, "identity:ratelimit", rule)
	require.NoError(t, err)
	return l, mr
}

func TestRedisLimiter_WindowAgainstRedis(t *testing.T) {
	l, mr := setupRedisLimiter(t, Rule{Limit: 2, Window: time.Minute})
	ctx := context.Background()
	key := "identity:ratelimit:auth:login:10.0.0.1"

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "auth:login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.Equal(t, time.Minute, mr.TTL(key))
	count, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", count)

	res, err := l.Allow(ctx, "auth:login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists(key), "window expired")

	res, err = l.Allow(ctx, "auth:login:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestRedisLimiter_RecoversCounterWithoutExpiry(t *testing.T) {
	l, mr := setupRedisLimiter(t, Rule{Limit: 1, Window: 30 * time.Second})
	key := "identity:ratelimit:k"
	require.NoError(t, mr.Set(key, strconv.Itoa(7)))

	res, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.Equal(t, 30*time.Second, mr.TTL(key))
}

func TestRedisLimiter_ServerError(t *testing.T) {
	l, mr := setupRedisLimiter(t, Rule{Limit: 1, Window: time.Second})
	mr.SetError("ERR injected failure")

	_, err := l.Allow(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment rate counter")
}
