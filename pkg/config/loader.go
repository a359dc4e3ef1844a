// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvPrefix("ONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine when the environment provides everything
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-reads the configuration whenever the file changes and hands
// the new value to onChange. Only safe-to-swap settings should be acted
// on; connection settings require a restart.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			log.Warn("ignoring invalid config change",
				slog.String("file", e.Name), slog.Any("error", err))
			return
		}

		log.Info("configuration reloaded", slog.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", 10*time.Second)
	v.SetDefault("bot.webhook_listen", ":8443")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.sqlite.path", "onboard.db")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("http.port", "8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("jobs.backfill_interval", time.Hour)
	v.SetDefault("jobs.concurrency", 5)

	v.SetDefault("i18n.default_locale", "ru")
	v.SetDefault("i18n.dir", "./locales")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_user.limit", 20)
	v.SetDefault("rate_limit.per_user.window", "1m")
	v.SetDefault("rate_limit.start.limit", 3)
	v.SetDefault("rate_limit.start.window", "10s")
}
