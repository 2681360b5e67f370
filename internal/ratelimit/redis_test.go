package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit Limit) (*RedisLimiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	current := time.Now()
	limiter := NewRedisLimiter(client, limit,
		WithRedisClock(func() time.Time { return current }),
	)
	t.Cleanup(func() { _ = limiter.Close() })

	return limiter, mr, &current
}

func TestRedisLimiter_AllowsUpToCapacity(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Limit{Capacity: 100, Refill: 100, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, time.Minute)
}

func TestRedisLimiter_RemainingDecreases(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Limit{Capacity: 10, Refill: 10, Window: time.Minute})
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 9, result.Remaining)

	result, err = limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 8, result.Remaining)
}

func TestRedisLimiter_ContinuousRefillMidWindow(t *testing.T) {
	// 6 tokens per minute refills one token every 10 seconds.
	limiter, _, now := newTestLimiter(t, Limit{Capacity: 6, Refill: 6, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	*now = now.Add(25 * time.Second)

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "tokens must trickle in mid-window")
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestRedisLimiter_RefillAfterWindow(t *testing.T) {
	limiter, _, now := newTestLimiter(t, Limit{Capacity: 3, Refill: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	*now = now.Add(time.Minute + time.Second)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d after refill should be allowed", i+1)
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestRedisLimiter_RefillCappedAtCapacity(t *testing.T) {
	limiter, _, now := newTestLimiter(t, Limit{Capacity: 5, Refill: 5, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)

	// Several idle windows must not grow the bucket past capacity.
	*now = now.Add(10 * time.Minute)

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestRedisLimiter_IndependentKeys(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Limit{Capacity: 2, Refill: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.Allow(ctx, "client-2")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "keys must not share a bucket")
}

func TestRedisLimiter_Reset(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Limit{Capacity: 1, Refill: 1, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "client-1"))

	result, err = limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_FallbackOnStoreError(t *testing.T) {
	limiter, mr, _ := newTestLimiter(t, Limit{Capacity: 5, Refill: 5, Window: time.Minute})
	ctx := context.Background()

	mr.Close()

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err, "store outage must not fail the check")
	assert.True(t, result.Allowed)
}

func TestLocalLimiter_AllowsBurstThenDenies(t *testing.T) {
	limiter := NewLocalLimiter(Limit{Capacity: 5, Refill: 5, Window: time.Minute})
	defer func() { _ = limiter.Close() }()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Minute, result.RetryAfter)
}

func TestLocalLimiter_Reset(t *testing.T) {
	limiter := NewLocalLimiter(Limit{Capacity: 1, Refill: 1, Window: time.Minute})
	defer func() { _ = limiter.Close() }()
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)

	result, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "client-1"))

	result, err = limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLocalLimiter_ManyKeys(t *testing.T) {
	limiter := NewLocalLimiter(Limit{Capacity: 1, Refill: 1, Window: time.Minute})
	defer func() { _ = limiter.Close() }()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		result, err := limiter.Allow(ctx, fmt.Sprintf("client-%d", i))
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}
