package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the onboarding bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	I18n      I18nConfig      `mapstructure:"i18n"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitRule pairs a request count with its window.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures per-user flood protection.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Start     RateLimitRule `mapstructure:"start"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// BotConfig configures the messenger session and the admin surface.
type BotConfig struct {
	// Token is the bot API token. The bot cannot start without it.
	Token string `mapstructure:"token" validate:"required"`
	// AdminIDs are the accounts allowed to use the admin commands.
	AdminIDs []int64 `mapstructure:"admin_ids"`
	// GroupURL is the community group invite link shown after registration.
	GroupURL string `mapstructure:"group_url"`
	// WebhookURL switches the bot from long polling to webhook delivery.
	WebhookURL string `mapstructure:"webhook_url"`
	// WebhookListen is the local address the webhook server binds to.
	WebhookListen string `mapstructure:"webhook_listen"`
	// PollTimeout is the long-poll duration when webhooks are not used.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// StorageConfig selects and configures the registry backend.
type StorageConfig struct {
	// Driver is one of postgres, sqlite, redis, memory.
	Driver   string         `mapstructure:"driver" validate:"required,oneof=postgres sqlite redis memory"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig holds the PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SQLiteConfig holds the SQLite file settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures the Redis connection used for workflow state,
// caching, rate limiting, and the redis storage driver.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig configures the operational HTTP server.
type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// JobsConfig configures the background worker.
type JobsConfig struct {
	// Enabled starts the asynq worker and scheduler.
	Enabled bool `mapstructure:"enabled"`
	// BackfillInterval is how often the numbering backfill sweep runs.
	BackfillInterval time.Duration `mapstructure:"backfill_interval"`
	// Concurrency is the worker pool size.
	Concurrency int `mapstructure:"concurrency"`
}

// I18nConfig configures message localization.
type I18nConfig struct {
	DefaultLocale string `mapstructure:"default_locale"`
	Dir           string `mapstructure:"dir"`
}

// IsAdmin reports whether id belongs to a configured administrator.
func (c *Config) IsAdmin(id int64) bool {
	for _, adminID := range c.Bot.AdminIDs {
		if adminID == id {
			return true
		}
	}
	return false
}
