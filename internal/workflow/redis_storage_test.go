package workflow

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStorage(t *testing.T) Storage {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStorage(client, testLogger())
}

func TestRedisStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newRedisStorage(t)

	_, err := storage.GetState(ctx, 42)
	require.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, storage.SetState(ctx, 42, &UserState{
		UserID:       42,
		CurrentState: StateAwaitingPhone,
	}))

	state, err := storage.GetState(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPhone, state.CurrentState)
	require.Equal(t, int64(42), state.UserID)
	require.False(t, state.UpdatedAt.IsZero())

	require.NoError(t, storage.ClearState(ctx, 42))

	_, err = storage.GetState(ctx, 42)
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestMemoryStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	_, err := storage.GetState(ctx, 7)
	require.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, storage.SetState(ctx, 7, &UserState{
		UserID:       7,
		CurrentState: StateComplete,
	}))

	state, err := storage.GetState(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, StateComplete, state.CurrentState)

	require.NoError(t, storage.ClearState(ctx, 7))
	_, err = storage.GetState(ctx, 7)
	require.ErrorIs(t, err, ErrStateNotFound)
}
