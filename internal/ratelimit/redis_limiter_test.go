package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLimiter(t *testing.T) (Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLimiter(client, testLogger()), mr
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRedisLimiter_BlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
	}

	result, err := limiter.Check(ctx, "user:1", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, 0, result.Remaining)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
	}

	result, err := limiter.Check(ctx, "user:2", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestRedisLimiter_ZeroLimitBlocksEverything(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	result, err := limiter.Check(context.Background(), "user:1", 0, time.Minute)
	require.NoError(t, err)
	require.False(t, result.Allowed)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:1", 2, 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "user:1", 2, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrLimitExceeded)
	require.False(t, result.Allowed)

	time.Sleep(60 * time.Millisecond)

	result, err = limiter.Check(ctx, "user:1", 2, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}
