package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	apperrors "github.com/arthall/onboard-bot/internal/errors"
	"github.com/arthall/onboard-bot/internal/jobs"
	"github.com/arthall/onboard-bot/internal/storage"
)

// NumberBackfillHandler assigns giveaway numbers to users that are
// missing one. Crash windows between a user insert and its number
// assignment are healed here; the sweep is idempotent.
type NumberBackfillHandler struct {
	store storage.Store
	log   *slog.Logger
}

func NewNumberBackfillHandler(store storage.Store, log *slog.Logger) *NumberBackfillHandler {
	return &NumberBackfillHandler{store: store, log: log}
}

func (h *NumberBackfillHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.NumberBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "backfill: failed to decode payload",
				slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		}
		return err
	}

	// The sweep is idempotent, so transient storage failures are retried
	// in place before asynq's coarser task-level retry takes over.
	var assigned int
	err := apperrors.WithRetry(ctx, func() error {
		var sweepErr error
		assigned, sweepErr = h.store.AssignMissingNumbers(ctx)
		if sweepErr != nil {
			return apperrors.NewStorageError(sweepErr)
		}
		return nil
	})
	if err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "backfill: sweep failed", slog.String("error", err.Error()))
		}
		return err
	}

	if h.log != nil && assigned > 0 {
		h.log.InfoContext(ctx, "backfill: assigned missing giveaway numbers", slog.Int("assigned", assigned))
	}

	return nil
}
