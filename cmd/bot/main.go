package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/arthall/onboard-bot/internal/bot"
	"github.com/arthall/onboard-bot/internal/database"
	"github.com/arthall/onboard-bot/internal/health"
	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/idempotency"
	"github.com/arthall/onboard-bot/internal/jobs"
	jobhandlers "github.com/arthall/onboard-bot/internal/jobs/handlers"
	"github.com/arthall/onboard-bot/internal/lifecycle"
	"github.com/arthall/onboard-bot/internal/middleware"
	"github.com/arthall/onboard-bot/internal/ratelimit"
	"github.com/arthall/onboard-bot/internal/registration"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/storage/memory"
	"github.com/arthall/onboard-bot/internal/storage/postgres"
	"github.com/arthall/onboard-bot/internal/storage/redisstore"
	"github.com/arthall/onboard-bot/internal/storage/sqlite"
	"github.com/arthall/onboard-bot/internal/usercache"
	"github.com/arthall/onboard-bot/internal/workflow"
	"github.com/arthall/onboard-bot/pkg/config"
	"github.com/arthall/onboard-bot/pkg/graceful"
	"github.com/arthall/onboard-bot/pkg/logger"
	"github.com/arthall/onboard-bot/pkg/metrics"
	redisclient "github.com/arthall/onboard-bot/pkg/redis"

	_ "github.com/lib/pq"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		// The bot token is required; there is nothing useful to do without it.
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Sentry.DSN != "" {
		env := cfg.Sentry.Environment
		if env == "" {
			env = cfg.AppEnv
		}
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: env}); err != nil {
			slog.Error("failed to initialize sentry", slog.Any("error", err))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(logger.Options{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		File:          cfg.Logging.File,
		SentryEnabled: cfg.Sentry.DSN != "",
	})
	slog.SetDefault(log)

	log.Info("starting onboarding bot",
		slog.String("env", cfg.AppEnv),
		slog.String("storage_driver", cfg.Storage.Driver))

	config.Watch(v, log, func(updated *config.Config) {
		// Connection settings need a restart; the reload only reports drift.
		log.Info("config file changed; restart to apply connection settings")
	})

	var rdb *redisclient.Client
	if cfg.Redis.Enabled {
		rdb, err = redisclient.New(ctx, redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
	}

	store, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		log.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}

	if err := store.Init(ctx); err != nil {
		log.Error("failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}

	// Heal any crash window that left users without a number.
	if assigned, err := store.AssignMissingNumbers(ctx); err != nil {
		log.Error("startup backfill sweep failed", slog.Any("error", err))
	} else if assigned > 0 {
		log.Info("startup backfill assigned missing numbers", slog.Int("assigned", assigned))
	}

	var fsmStorage workflow.Storage
	var cache *usercache.Cache
	if rdb != nil {
		fsmStorage = workflow.NewRedisStorage(rdb.Client, log)
		cache = usercache.NewCache(rdb.Client)
	} else {
		fsmStorage = workflow.NewMemoryStorage()
	}

	var fsmLock *redis.Client
	if rdb != nil {
		fsmLock = rdb.Client
	}
	fsm := workflow.NewMachine(fsmStorage, log, fsmLock)

	svc := registration.NewService(store, fsm, cache, log)

	translations, err := i18n.LoadFromDir(cfg.I18n.Dir, cfg.I18n.DefaultLocale)
	if err != nil {
		log.Error("failed to load translations", slog.Any("error", err))
		os.Exit(1)
	}
	translator := translations.Translator(cfg.I18n.DefaultLocale)

	var idemManager idempotency.Manager
	if rdb != nil {
		idemManager = idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)
	}

	var rateLimitMw *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		var limiter ratelimit.Limiter
		if rdb != nil {
			limiter = ratelimit.NewRedisLimiter(rdb.Client, log)
		} else {
			limiter = ratelimit.NewMemoryLimiter(log)
		}

		limits := cfg.RateLimit
		limits.Whitelist = append(limits.Whitelist, cfg.Bot.AdminIDs...)
		rateLimitMw = middleware.NewRateLimitMiddleware(
			limiter, ratelimit.NewRules(limits), translator.T("errors.rate_limited"), log)
	}

	b, err := bot.New(cfg, log, svc, fsm, store, translator, idemManager, rateLimitMw)
	if err != nil {
		log.Error("failed to build bot", slog.Any("error", err))
		os.Exit(1)
	}

	checker := health.NewChecker(log)
	checker.AddCheck("storage", health.NewStoreChecker(store))
	if rdb != nil {
		checker.AddCheck("redis", health.NewRedisChecker(rdb.Client))
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

	opsServer := graceful.NewServer(log, opsHTTPServer(cfg.HTTP.Port, checker), shutdownTimeout)

	collector := metrics.NewStateCollector(fsm)
	go collector.Run(ctx)

	var worker jobs.Worker
	var scheduler jobs.Scheduler
	if cfg.Jobs.Enabled && rdb != nil {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		worker = jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, log)
		worker.RegisterHandler(jobs.TaskTypeNumberBackfill, jobhandlers.NewNumberBackfillHandler(store, log))
		go func() {
			if err := worker.Run(); err != nil {
				log.Error("jobs worker stopped", slog.Any("error", err))
			}
		}()

		scheduler = jobs.NewScheduler(redisOpt, cfg.Jobs.BackfillInterval, log)
		if err := scheduler.RegisterTasks(); err != nil {
			log.Error("failed to register scheduled tasks", slog.Any("error", err))
		} else {
			scheduler.Run()
		}
	}

	go b.Start()
	go func() {
		if err := opsServer.ListenAndServe(ctx); err != nil {
			log.Error("ops server stopped", slog.Any("error", err))
		}
	}()

	<-ctx.Done()

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("telegram-bot", func(ctx context.Context) error {
		b.Stop()
		return nil
	})
	shutdown.Register("storage", func(ctx context.Context) error {
		return store.Close()
	})
	if rdb != nil {
		shutdown.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
	}
	if worker != nil {
		shutdown.Register("jobs-worker", func(ctx context.Context) error {
			worker.Shutdown()
			return nil
		})
	}
	if scheduler != nil {
		shutdown.Register("jobs-scheduler", func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	log.Info("onboarding bot stopped")
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redisclient.Client, log *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		if err := database.NewMigrator(db, log).ApplyDir(ctx, "migrations"); err != nil {
			return nil, err
		}
		return postgres.New(db, log), nil
	case "sqlite":
		return sqlite.Open(cfg.Storage.SQLite.Path, log)
	case "redis":
		if rdb == nil {
			rdb2, err := redisclient.New(ctx, redisclient.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return nil, err
			}
			return redisstore.New(rdb2.Client, log), nil
		}
		return redisstore.New(rdb.Client, log), nil
	default:
		return memory.New(), nil
	}
}

func opsHTTPServer(port string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if checker.Healthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           logger.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
