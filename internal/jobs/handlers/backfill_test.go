package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/jobs"
	"github.com/arthall/onboard-bot/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakySweepStore fails the sweep a fixed number of times before
// delegating to the in-memory store.
type flakySweepStore struct {
	*memory.Store
	failures int
	calls    int
}

func (s *flakySweepStore) AssignMissingNumbers(ctx context.Context) (int, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, errors.New("connection reset by peer")
	}
	return s.Store.AssignMissingNumbers(ctx)
}

func TestProcessTask_RetriesTransientSweepFailure(t *testing.T) {
	store := &flakySweepStore{Store: memory.New(), failures: 2}
	h := NewNumberBackfillHandler(store, testLogger())

	task, err := jobs.NewNumberBackfillTask()
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, 3, store.calls)
}

func TestProcessTask_GivesUpAfterPersistentFailure(t *testing.T) {
	store := &flakySweepStore{Store: memory.New(), failures: 100}
	h := NewNumberBackfillHandler(store, testLogger())

	task, err := jobs.NewNumberBackfillTask()
	require.NoError(t, err)

	require.Error(t, h.ProcessTask(context.Background(), task))
}

func TestProcessTask_RejectsMalformedPayload(t *testing.T) {
	h := NewNumberBackfillHandler(memory.New(), testLogger())

	task := asynq.NewTask(jobs.TaskTypeNumberBackfill, []byte("{not json"))
	require.Error(t, h.ProcessTask(context.Background(), task))
}
