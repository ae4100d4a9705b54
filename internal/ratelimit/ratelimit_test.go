package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 60*time.Second, bucketTTL(0.1, 3))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestRetryAfter(t *testing.T) {
	assert.InDelta(t, float64(10*time.Second), float64(retryAfter(0, 0.1)), float64(time.Millisecond))
	assert.InDelta(t, float64(5*time.Second), float64(retryAfter(0.5, 0.1)), float64(time.Millisecond))
	assert.Zero(t, retryAfter(1, 0.1))
}

func TestTriggerLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewTriggerLimiter(TriggerLimiterParams{
		Config: config.Config{Redis: config.RedisConfig{TriggerRate: 1, TriggerBurst: 1}},
		Log:    zap.NewNop(),
	})
	require.False(t, limiter.Enabled())

	for i := 0; i < 5; i++ {
		res, err := limiter.Allow(context.Background(), "t1", "billing_run")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestLockerNilIsSafe(t *testing.T) {
	var locker *Locker
	_, err := locker.Acquire(context.Background(), "tick", time.Second)
	assert.Error(t, err)
	assert.NoError(t, locker.Release(context.Background(), &Lease{Key: "k", Token: "t"}))
}

// The Redis-backed cases need a disposable server, e.g.
// REDIS_TEST_ADDR=localhost:6379 go test ./internal/ratelimit/...
func redisForTest(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucketDeniesAfterBurst(t *testing.T) {
	client := redisForTest(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "bucket:test", 0.01, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}
	res, err := bucket.Allow(ctx, "bucket:test", 0.01, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLockerLeaseIsExclusive(t *testing.T) {
	client := redisForTest(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "scheduler:tick", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	other, err := locker.Acquire(ctx, "scheduler:tick", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, locker.Release(ctx, lease))
	again, err := locker.Acquire(ctx, "scheduler:tick", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}
