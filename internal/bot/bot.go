// Package bot wires the Telegram surface: session, routing, middleware
// chain, and handler registration.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
	"github.com/arthall/onboard-bot/internal/bot/keyboard"
	"github.com/arthall/onboard-bot/internal/broadcast"
	errors "github.com/arthall/onboard-bot/internal/errors"
	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/idempotency"
	"github.com/arthall/onboard-bot/internal/middleware"
	"github.com/arthall/onboard-bot/internal/registration"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/workflow"
	"github.com/arthall/onboard-bot/pkg/config"
)

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot            *telebot.Bot
	log                *slog.Logger
	cfg                *config.Config
	svc                *registration.Service
	fsm                workflow.Machine
	broadcaster        *broadcast.Broadcaster
	translator         i18n.Translator
	router             *Router
	dispatcher         *Dispatcher
	errHandler         *errors.Handler
	rateLimitMw        *middleware.RateLimitMiddleware
	idempotencyManager idempotency.Manager
}

// New builds a telegram bot instance configured according to the application settings.
func New(
	cfg *config.Config,
	log *slog.Logger,
	svc *registration.Service,
	fsm workflow.Machine,
	store storage.Store,
	translator i18n.Translator,
	idempotencyManager idempotency.Manager,
	rateLimitMw *middleware.RateLimitMiddleware,
) (*Bot, error) {
	settings := telebot.Settings{
		Token: cfg.Bot.Token,
	}

	if cfg.Bot.WebhookURL != "" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.Bot.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.PollTimeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	dispatcher := NewDispatcher(fsm, log)
	router := NewRouter(dispatcher, log)
	errHandler := errors.NewHandler(log, cfg.Sentry.DSN != "")

	b := &Bot{
		telebot:            tb,
		log:                log,
		cfg:                cfg,
		svc:                svc,
		fsm:                fsm,
		translator:         translator,
		router:             router,
		dispatcher:         dispatcher,
		errHandler:         errHandler,
		rateLimitMw:        rateLimitMw,
		idempotencyManager: idempotencyManager,
	}

	b.broadcaster = broadcast.New(store, broadcast.SenderFunc(b.SendTo), log)

	b.setupRouter()

	if b.rateLimitMw != nil {
		b.telebot.Use(b.rateLimitMw.Handle)
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnContact, b.router.Route)

	return b, nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// SendTo delivers a plain text message to one user. Used by the broadcaster.
func (b *Bot) SendTo(ctx context.Context, userID int64, message string) error {
	_, err := b.telebot.Send(&telebot.User{ID: userID}, message)
	return err
}

func (b *Bot) setupRouter() {
	t := b.translator

	// Logging runs before idempotency so the correlation ID it assigns
	// reaches the dedup store calls and everything inner.
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler, t.T("errors.generic")))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Idempotency(b.idempotencyManager, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler, t.T("errors.generic")))
	b.router.Use(middleware.Metrics)

	b.router.RegisterCommand(CommandStart,
		handlers.NewStartHandler(b.svc, t, b.cfg.Bot.GroupURL, b.log))

	admin := handlers.NewAdmin(b.svc, b.broadcaster, t, b.log)
	isAdmin := b.cfg.IsAdmin
	b.router.RegisterCommand(CommandStats, admin.Only(isAdmin, admin.Stats()))
	b.router.RegisterCommand(CommandExport, admin.Only(isAdmin, admin.Export()))
	b.router.RegisterCommand(CommandBroadcast, admin.Only(isAdmin, admin.Broadcast()))
	b.router.RegisterCommand(CommandSetAnnounce, admin.Only(isAdmin, admin.SetAnnounce()))
	b.router.RegisterCommand(CommandSetGiveaway, admin.Only(isAdmin, admin.SetGiveaway()))
	b.router.RegisterCommand(CommandSetDiscounts, admin.Only(isAdmin, admin.SetDiscounts()))
	b.router.RegisterCommand(CommandSetExhibition, admin.Only(isAdmin, admin.SetExhibition()))
	b.router.RegisterCommand(CommandQR, admin.Only(isAdmin, admin.QR()))

	b.router.RegisterContact(handlers.NewContactHandler(b.svc, t, b.log))
	b.router.RegisterText(t.T("menu.skip"), handlers.NewSkipHandler(b.svc, t, b.log))
	b.router.RegisterText(t.T("menu.my_number"), handlers.NewMyNumberHandler(b.svc, t, b.log))
	b.router.RegisterText(t.T("menu.giveaway"),
		handlers.NewMediaContentHandler(b.svc, t, storage.SettingGiveawayMedia, b.log))
	b.router.RegisterText(t.T("menu.discounts"),
		handlers.NewTextContentHandler(b.svc, t, storage.SettingDiscountsText, b.log))
	b.router.RegisterText(t.T("menu.exhibition"),
		handlers.NewTextContentHandler(b.svc, t, storage.SettingExhibitionText, b.log))

	// Free-form text while awaiting the phone re-prompts the choice.
	b.dispatcher.RegisterStateHandler(workflow.StateAwaitingPhone, func(c telebot.Context) error {
		return c.Send(t.T("start.ask_phone"), keyboard.SharePhone(t))
	})
}

// Broadcaster exposes the broadcast fan-out for background use.
func (b *Bot) Broadcaster() *broadcast.Broadcaster {
	return b.broadcaster
}
