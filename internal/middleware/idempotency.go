package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
	"github.com/arthall/onboard-bot/internal/idempotency"
	"github.com/arthall/onboard-bot/pkg/logger"
)

// Idempotency ensures handlers execute at most once per Telegram update.
// Redelivered updates and double-taps collapse onto the first execution,
// which keeps rapid-fire /start floods from racing the registry.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			_, err := manager.Execute(updateContext(c), key, 24*time.Hour, func(execCtx context.Context) (interface{}, error) {
				return nil, next(c)
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					return nil
				}

				log.Error("idempotent handler failed", slog.String("key", key), slog.Any("error", err))
				return err
			}

			return nil
		}
	}
}

// updateContext carries the correlation ID set by the logging middleware
// into the idempotency store calls.
func updateContext(c telebot.Context) context.Context {
	ctx := context.Background()
	if c == nil {
		return ctx
	}

	if id, ok := c.Get("correlation_id").(string); ok && id != "" {
		ctx = logger.ContextWithCorrelationID(ctx, id)
	}

	return ctx
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.UpdateKey(chatID, msg.ID)
	}

	return ""
}
