package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/storage/storagetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestBackfillHealsLegacyRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 1, FirstName: "A"}))

	// Rows created before numbering existed carry NULL giveaway numbers.
	for _, id := range []int64{2, 3} {
		_, err := store.db.ExecContext(ctx,
			`INSERT INTO users (telegram_id, first_name, joined_at) VALUES (?, ?, ?)`,
			id, "Legacy", time.Now().UTC().Format(time.RFC3339),
		)
		require.NoError(t, err)
	}

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, healed)

	for id, want := range map[int64]int{1: 1, 2: 2, 3: 3} {
		got, err := store.GiveawayNumber(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, "user %d", id)
	}

	// A second sweep with nothing to heal is a no-op.
	healed, err = store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Zero(t, healed)
}

func TestNumberConflictDetection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 1, FirstName: "A"}))

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, first_name, joined_at, giveaway_number) VALUES (?, ?, ?, ?)`,
		2, "B", time.Now().UTC().Format(time.RFC3339), 1,
	)
	require.Error(t, err)
	require.True(t, isNumberConflict(err))
}
