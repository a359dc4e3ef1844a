// Package broadcast delivers an admin message to every registered user.
// Delivery is sequential with a pause between sends so the run stays
// under the messenger's flood limits, and a single failed recipient
// never aborts the run.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arthall/onboard-bot/internal/storage"
)

// Sender delivers one message to one recipient. Implemented by the bot
// surface; kept narrow so the fan-out is testable without a live session.
type Sender interface {
	SendTo(ctx context.Context, userID int64, message string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, userID int64, message string) error

func (f SenderFunc) SendTo(ctx context.Context, userID int64, message string) error {
	return f(ctx, userID, message)
}

// Result summarizes one broadcast run.
type Result struct {
	Total     int
	Delivered int
	Failed    []Failure
}

// Failure records a recipient the broadcast could not reach.
type Failure struct {
	UserID int64
	Err    error
}

// Broadcaster fans a message out to the full registry.
type Broadcaster struct {
	store    storage.Store
	sender   Sender
	log      *slog.Logger
	interval time.Duration
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithInterval overrides the pause between consecutive sends.
func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.interval = d
	}
}

// New constructs a Broadcaster.
func New(store storage.Store, sender Sender, log *slog.Logger, opts ...Option) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}

	b := &Broadcaster{
		store:    store,
		sender:   sender,
		log:      log,
		interval: 50 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Send delivers message to every registered user and reports the
// per-recipient outcome. Cancelling ctx stops the run early; recipients
// already processed keep their result.
func (b *Broadcaster) Send(ctx context.Context, message string) (*Result, error) {
	ids, err := b.store.AllUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list broadcast recipients: %w", err)
	}

	result := &Result{Total: len(ids)}

	for i, id := range ids {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := b.sender.SendTo(ctx, id, message); err != nil {
			result.Failed = append(result.Failed, Failure{UserID: id, Err: err})
			b.log.Warn("broadcast delivery failed",
				slog.Int64("telegram_id", id), slog.Any("error", err))
		} else {
			result.Delivered++
		}

		if b.interval > 0 && i < len(ids)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(b.interval):
			}
		}
	}

	b.log.Info("broadcast finished",
		slog.Int("total", result.Total),
		slog.Int("delivered", result.Delivered),
		slog.Int("failed", len(result.Failed)))

	return result, nil
}
