package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user rate limits for incoming Telegram updates.
// /start carries its own stricter rule because each one may cost a registry write.
type RateLimitMiddleware struct {
	limiter    ratelimit.Limiter
	rules      *ratelimit.Rules
	limitedMsg string
	log        *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, limitedMsg string, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter:    limiter,
		rules:      rules,
		limitedMsg: limitedMsg,
		log:        log,
	}
}

// Handle returns a telebot middleware that enforces per-user rate limits.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil {
			return next(c)
		}

		userID := sender.ID
		if m.rules.IsWhitelisted(userID) {
			return next(c)
		}

		limit, window, err := m.rules.PerUserLimit()
		key := fmt.Sprintf("user:%d", userID)

		if strings.HasPrefix(c.Text(), "/start") {
			limit, window, err = m.rules.StartLimit()
			key = fmt.Sprintf("start:%d", userID)
		}

		if err != nil {
			m.log.Error("failed to load rate limit rule", slog.Int64("user_id", userID), slog.Any("error", err))
			return next(c)
		}

		result, err := m.limiter.Check(context.Background(), key, limit, window)
		if err != nil && result == nil {
			m.log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
			return next(c)
		}

		if result != nil && !result.Allowed {
			m.log.Warn("rate limit exceeded", slog.Int64("user_id", userID))
			if m.limitedMsg != "" {
				return c.Send(m.limitedMsg)
			}
			return nil
		}

		return next(c)
	}
}
