// Package middleware holds handler middlewares shared across the bot surface.
package middleware

import (
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
	"github.com/arthall/onboard-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		command := extractCommandName(c)
		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(command, status, time.Since(start))

		return err
	}
}

func extractCommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if msg := c.Message(); msg != nil && msg.Contact != nil {
		return "contact"
	}

	if text := c.Text(); text != "" {
		return text
	}

	return "unknown"
}
