package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

// seedUnnumbered creates a record without a giveaway number, simulating
// rows that predate numbering.
func (s *Store) seedUnnumbered(id int64, first string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[id] = &record{
		user: domain.User{
			TelegramID: id,
			FirstName:  first,
			JoinedAt:   time.Now().UTC(),
		},
		seq: s.nextSeq,
	}
	s.nextSeq++
}

func TestBackfillHealsInCreationOrder(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 1, FirstName: "A"}))
	store.seedUnnumbered(2, "B")
	store.seedUnnumbered(3, "C")

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, healed)

	for id, want := range map[int64]int{1: 1, 2: 2, 3: 3} {
		got, err := store.GiveawayNumber(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, "user %d", id)
	}

	// Repeating the sweep changes nothing.
	healed, err = store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Zero(t, healed)

	got, err := store.GiveawayNumber(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

func TestBackfillContinuesAboveExistingMax(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 10, FirstName: "A"}))
	require.NoError(t, store.AddUser(ctx, &domain.User{TelegramID: 20, FirstName: "B"}))
	store.seedUnnumbered(30, "C")

	healed, err := store.AssignMissingNumbers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, healed)

	got, err := store.GiveawayNumber(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 3, got)
}
