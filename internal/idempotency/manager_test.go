package idempotency

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

func newTestManager(t *testing.T) Manager {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewManager(NewRedisStore(client, testLogger()), testLogger())
}

func TestExecute_RunsOperationOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return "done", nil
	}

	first, err := m.Execute(ctx, "update:1", time.Minute, op)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := m.Execute(ctx, "update:1", time.Minute, op)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, "done", second.Response)
	require.Equal(t, 1, calls)
}

func TestExecute_RedeliveryAfterCompletionIsAbsorbed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	// Simulate Telegram redelivering the same update several times after
	// the first handling finished and its lock was released.
	for i := 0; i < 3; i++ {
		result, err := m.Execute(ctx, "update:7", time.Minute, op)
		require.NoError(t, err)
		require.Equal(t, i > 0, result.FromCache)
	}

	require.Equal(t, 1, calls)
}

func TestExecute_DistinctKeysRunIndependently(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, nil
	}

	_, err := m.Execute(ctx, "update:1", time.Minute, op)
	require.NoError(t, err)

	_, err = m.Execute(ctx, "update:2", time.Minute, op)
	require.NoError(t, err)

	require.Equal(t, 2, calls)
}

func TestGenerateKey_Deterministic(t *testing.T) {
	a := GenerateKey("msg", int64(10), 42)
	b := GenerateKey("msg", int64(10), 42)
	c := GenerateKey("msg", int64(10), 43)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestUpdateKey_DistinguishesChats(t *testing.T) {
	require.Equal(t, UpdateKey(10, 42), UpdateKey(10, 42))
	require.NotEqual(t, UpdateKey(10, 42), UpdateKey(11, 42))
	require.NotEqual(t, UpdateKey(10, 42), UpdateKey(10, 43))
}
