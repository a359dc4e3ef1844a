package ratelimit

import (
	"errors"
	"time"

	"github.com/arthall/onboard-bot/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
// Administrators go here so broadcasts and exports are never throttled.
func (r *Rules) IsWhitelisted(userID int64) bool {
	for _, id := range r.config.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// StartLimit returns the dedicated limit for /start. It is stricter than
// the general per-user limit because each /start may cost a registry write.
func (r *Rules) StartLimit() (int, time.Duration, error) {
	return parseRule(r.config.Start)
}

// PerUserLimit returns the general per-user rule.
func (r *Rules) PerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
