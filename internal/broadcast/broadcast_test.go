package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStore(t *testing.T, n int) *memory.Store {
	t.Helper()

	store := memory.New()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		require.NoError(t, store.AddUser(ctx, &domain.User{
			TelegramID: int64(i),
			JoinedAt:   time.Now().UTC(),
		}))
	}

	return store
}

func TestSend_DeliversToEveryone(t *testing.T) {
	store := seedStore(t, 3)

	var delivered []int64
	sender := SenderFunc(func(_ context.Context, userID int64, message string) error {
		require.Equal(t, "hello", message)
		delivered = append(delivered, userID)
		return nil
	})

	b := New(store, sender, testLogger(), WithInterval(0))

	result, err := b.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Delivered)
	require.Empty(t, result.Failed)
	require.ElementsMatch(t, []int64{1, 2, 3}, delivered)
}

func TestSend_FailureDoesNotAbortRun(t *testing.T) {
	store := seedStore(t, 3)

	blocked := errors.New("forbidden: bot was blocked by the user")
	sender := SenderFunc(func(_ context.Context, userID int64, _ string) error {
		if userID == 2 {
			return blocked
		}
		return nil
	})

	b := New(store, sender, testLogger(), WithInterval(0))

	result, err := b.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Delivered)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(2), result.Failed[0].UserID)
	require.ErrorIs(t, result.Failed[0].Err, blocked)
}

func TestSend_ContextCancelStopsEarly(t *testing.T) {
	store := seedStore(t, 5)

	ctx, cancel := context.WithCancel(context.Background())

	var sent int
	sender := SenderFunc(func(_ context.Context, _ int64, _ string) error {
		sent++
		if sent == 2 {
			cancel()
		}
		return nil
	})

	b := New(store, sender, testLogger(), WithInterval(0))

	result, err := b.Send(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, result.Delivered)
}

func TestSend_EmptyRegistry(t *testing.T) {
	store := memory.New()

	sender := SenderFunc(func(_ context.Context, _ int64, _ string) error {
		t.Fatal("sender must not be called for an empty registry")
		return nil
	})

	b := New(store, sender, testLogger(), WithInterval(0))

	result, err := b.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 0, result.Total)
	require.Equal(t, 0, result.Delivered)
}
