package redisstore

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, testLogger())
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

// seedUnnumbered writes a user hash without a giveaway number, the shape
// records had before numbering existed.
func seedUnnumbered(t *testing.T, store *Store, id int64, seq float64) {
	t.Helper()
	ctx := context.Background()

	key := userKey(id)
	require.NoError(t, store.client.HSet(ctx, key,
		"telegram_id", strconv.FormatInt(id, 10),
		"first_name", "Legacy",
		"phone", "",
		"joined_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err())
	require.NoError(t, store.client.ZAdd(ctx, joinSetKey,
		redis.Z{Score: seq, Member: strconv.FormatInt(id, 10)}).Err())
}

func TestInitOnEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Counter sync on a store whose counter key has never been written
	// must succeed, not surface the missing key as an error.
	require.NoError(t, store.Init(ctx))

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Zero(t, healed)
}

func TestBackfillHealsLegacyRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 1, FirstName: "A"}))
	seedUnnumbered(t, store, 2, 1000)
	seedUnnumbered(t, store, 3, 1001)

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, healed)

	for id, want := range map[int64]int{1: 1, 2: 2, 3: 3} {
		got, err := store.GiveawayNumber(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, "user %d", id)
	}

	healed, err = store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Zero(t, healed)
}

func TestCounterResyncAfterLoss(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 1, FirstName: "A"}))
	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 2, FirstName: "B"}))

	// Simulate a lost counter key; Init must restore the watermark from
	// the assigned numbers so the next assignment is 3, not 1.
	require.NoError(t, store.client.Del(ctx, numberSeqKey).Err())
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 3, FirstName: "C"}))

	number, err := store.GiveawayNumber(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 3, number)
}

func TestGiveawayNumberUnknownUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GiveawayNumber(ctx, 404)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
