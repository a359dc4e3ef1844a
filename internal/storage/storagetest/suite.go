// Package storagetest provides a conformance suite that every storage
// adapter must pass. Adapter packages call Run from their own tests with
// a factory producing a fresh, empty store.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
)

// Factory returns a fresh, empty store. The suite calls it once per subtest.
type Factory func(t *testing.T) storage.Store

// Run executes the full conformance suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("FirstAssignmentStartsAtOne", func(t *testing.T) {
		testFirstAssignment(t, factory(t))
	})
	t.Run("RegistrationScenario", func(t *testing.T) {
		testRegistrationScenario(t, factory(t))
	})
	t.Run("AddUserIdempotent", func(t *testing.T) {
		testAddUserIdempotent(t, factory(t))
	})
	t.Run("ConcurrentRegistrations", func(t *testing.T) {
		testConcurrentRegistrations(t, factory(t))
	})
	t.Run("StatsRecentFive", func(t *testing.T) {
		testStatsRecentFive(t, factory(t))
	})
	t.Run("ExportCreationOrder", func(t *testing.T) {
		testExportCreationOrder(t, factory(t))
	})
	t.Run("SettingsUpsert", func(t *testing.T) {
		testSettingsUpsert(t, factory(t))
	})
	t.Run("BackfillNoopWhenNumbered", func(t *testing.T) {
		testBackfillNoop(t, factory(t))
	})
	t.Run("SavePhoneUnknownUser", func(t *testing.T) {
		testSavePhoneUnknownUser(t, factory(t))
	})
}

func newUser(id int64, first string) *domain.User {
	return &domain.User{
		TelegramID: id,
		Username:   fmt.Sprintf("user%d", id),
		FirstName:  first,
		JoinedAt:   time.Now().UTC(),
	}
}

func testFirstAssignment(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	require.NoError(t, store.AddUser(ctx, newUser(111, "Anna")))

	number, err := store.GiveawayNumber(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, 1, number)
}

func testRegistrationScenario(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	require.NoError(t, store.AddUser(ctx, newUser(111, "Anna")))
	require.NoError(t, store.AddUser(ctx, newUser(222, "Boris")))

	number, err := store.GiveawayNumber(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, 1, number)

	number, err = store.GiveawayNumber(ctx, 222)
	require.NoError(t, err)
	require.Equal(t, 2, number)

	require.NoError(t, store.SavePhone(ctx, 111, "+15551234567"))

	users, err := store.ExportUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "+15551234567", users[0].Phone)

	// The phone write must not disturb the number.
	number, err = store.GiveawayNumber(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, 1, number)
}

func testAddUserIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	require.NoError(t, store.AddUser(ctx, newUser(333, "Vera")))

	before, err := store.GiveawayNumber(ctx, 333)
	require.NoError(t, err)

	// Second registration of the same identity is a silent no-op.
	require.NoError(t, store.AddUser(ctx, newUser(333, "Vera")))

	after, err := store.GiveawayNumber(ctx, 333)
	require.NoError(t, err)
	require.Equal(t, before, after)

	ids, err := store.AllUserIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func testConcurrentRegistrations(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	const n = 40

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.AddUser(ctx, newUser(int64(1000+i), "User"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "registration %d failed", i)
	}

	ids, err := store.AllUserIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, n)

	seen := make(map[int]bool, n)
	for _, id := range ids {
		number, err := store.GiveawayNumber(ctx, id)
		require.NoError(t, err)
		require.Falsef(t, seen[number], "number %d assigned twice", number)
		require.GreaterOrEqual(t, number, 1)
		require.LessOrEqual(t, number, n)
		seen[number] = true
	}
	require.Len(t, seen, n)
}

func testStatsRecentFive(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.AddUser(ctx, newUser(int64(i), fmt.Sprintf("U%d", i))))
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, stats.Total)
	require.Len(t, stats.Recent, 5)

	// Newest first: the last registered identity leads.
	require.Equal(t, int64(7), stats.Recent[0].TelegramID)
	require.Equal(t, int64(3), stats.Recent[4].TelegramID)
}

func testExportCreationOrder(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	order := []int64{42, 7, 99}
	for _, id := range order {
		require.NoError(t, store.AddUser(ctx, newUser(id, "User")))
	}

	users, err := store.ExportUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, len(order))
	for i, id := range order {
		require.Equal(t, id, users[i].TelegramID)
		require.Equal(t, i+1, users[i].GiveawayNumber)
	}
}

func testSettingsUpsert(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	_, err := store.Setting(ctx, storage.SettingAnnouncementImage)
	require.ErrorIs(t, err, storage.ErrSettingNotFound)

	require.NoError(t, store.SetSetting(ctx, storage.SettingAnnouncementImage, "file-1"))

	value, err := store.Setting(ctx, storage.SettingAnnouncementImage)
	require.NoError(t, err)
	require.Equal(t, "file-1", value)

	require.NoError(t, store.SetSetting(ctx, storage.SettingAnnouncementImage, "file-2"))

	value, err = store.Setting(ctx, storage.SettingAnnouncementImage)
	require.NoError(t, err)
	require.Equal(t, "file-2", value)
}

func testBackfillNoop(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.AddUser(ctx, newUser(int64(i), "User")))
	}

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Zero(t, healed)

	// Numbering is untouched by repeated sweeps.
	for i := 1; i <= 3; i++ {
		number, err := store.GiveawayNumber(ctx, int64(i))
		require.NoError(t, err)
		require.Equal(t, i, number)
	}
}

func testSavePhoneUnknownUser(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	err := store.SavePhone(ctx, 404, "+10000000000")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
