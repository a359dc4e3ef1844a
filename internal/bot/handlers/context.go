// Package handlers contains the update handlers for the onboarding bot.
package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/pkg/logger"
)

// updateContext builds the request context for one update, carrying the
// correlation ID stored by the logging middleware.
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
