package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
	errors "github.com/arthall/onboard-bot/internal/errors"
	"github.com/arthall/onboard-bot/pkg/logger"
)

// requestContext rebuilds the context for one update from the
// correlation ID stored on the telebot context.
func requestContext(c telebot.Context) context.Context {
	ctx := context.Background()
	if c == nil {
		return ctx
	}

	if id, ok := c.Get("correlation_id").(string); ok && id != "" {
		ctx = logger.ContextWithCorrelationID(ctx, id)
	}

	return ctx
}

// updateContext is the dispatcher-side alias for requestContext.
func updateContext(c telebot.Context) context.Context {
	return requestContext(c)
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler, fallbackMsg string) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := fallbackMsg
					if errHandler != nil {
						appErr := errors.NewStorageError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(requestContext(c), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil && userMsg != "" {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *errors.Handler, fallbackMsg string) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := fallbackMsg
			if errHandler != nil {
				if msg, _ := errHandler.Handle(requestContext(c), err); msg != "" {
					userMsg = msg
				}
			}

			if c != nil && userMsg != "" {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware tags each update with a correlation ID and logs basic telemetry.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()

			correlationID := logger.NewCorrelationID()
			if c != nil {
				c.Set("correlation_id", correlationID)
			}

			userID := int64(0)
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}

			action := ""
			if c != nil {
				action = c.Text()
			}

			log.Info("handling update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.String("correlation_id", correlationID))

			err := next(c)

			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.String("correlation_id", correlationID),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}
