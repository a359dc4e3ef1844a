package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/broadcast"
	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/registration"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/pkg/metrics"
)

// Admin bundles the handlers behind the administrator commands.
type Admin struct {
	svc         *registration.Service
	broadcaster *broadcast.Broadcaster
	t           i18n.Translator
	log         *slog.Logger
}

// NewAdmin constructs the admin handler set.
func NewAdmin(svc *registration.Service, broadcaster *broadcast.Broadcaster, t i18n.Translator, log *slog.Logger) *Admin {
	if log == nil {
		log = slog.Default()
	}

	return &Admin{
		svc:         svc,
		broadcaster: broadcaster,
		t:           t,
		log:         log,
	}
}

// Only guards a handler so that non-admin senders get a refusal.
func (a *Admin) Only(isAdmin func(int64) bool, next Handler) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil || isAdmin == nil || !isAdmin(sender.ID) {
			return c.Send(a.t.T("admin.not_allowed"))
		}
		return next(c)
	}
}

// Stats replies with the registry total and the five latest registrations.
func (a *Admin) Stats() Handler {
	return func(c telebot.Context) error {
		stats, err := a.svc.Stats(updateContext(c))
		if err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString(a.t.Tf("admin.stats_header", stats.Total))

		if len(stats.Recent) > 0 {
			b.WriteString("\n\n")
			b.WriteString(a.t.T("admin.stats_recent"))
			for _, u := range stats.Recent {
				fmt.Fprintf(&b, "\n№%d — %s", u.GiveawayNumber, displayName(u))
			}
		}

		return c.Send(b.String())
	}
}

// Export sends the full registry as a CSV document.
func (a *Admin) Export() Handler {
	return func(c telebot.Context) error {
		ctx := updateContext(c)

		stats, err := a.svc.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.Total == 0 {
			return c.Send(a.t.T("admin.export_empty"))
		}

		data, err := a.svc.ExportCSV(ctx)
		if err != nil {
			return err
		}

		doc := &telebot.Document{
			File:     telebot.FromReader(bytes.NewReader(data)),
			FileName: fmt.Sprintf("participants_%s.csv", time.Now().Format("2006-01-02")),
			MIME:     "text/csv",
			Caption:  a.t.T("admin.export_caption"),
		}

		return c.Send(doc)
	}
}

// Broadcast fans the command payload out to every registered user.
func (a *Admin) Broadcast() Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || strings.TrimSpace(msg.Payload) == "" {
			return c.Send(a.t.T("admin.broadcast_usage"))
		}

		result, err := a.broadcaster.Send(updateContext(c), strings.TrimSpace(msg.Payload))
		if err != nil {
			return err
		}

		for range result.Failed {
			metrics.RecordBroadcastDelivery(false)
		}
		for i := 0; i < result.Delivered; i++ {
			metrics.RecordBroadcastDelivery(true)
		}

		return c.Send(a.t.Tf("admin.broadcast_done", result.Delivered, result.Total, len(result.Failed)))
	}
}

// SetAnnounce stores the attached photo as the announcement shown to new users.
func (a *Admin) SetAnnounce() Handler {
	return a.mediaSetter(storage.SettingAnnouncementImage, "admin.setannounce_usage", "admin.setannounce_done")
}

// SetGiveaway stores the attached photo as the giveaway media.
func (a *Admin) SetGiveaway() Handler {
	return a.mediaSetter(storage.SettingGiveawayMedia, "admin.setgiveaway_usage", "admin.setgiveaway_done")
}

// SetDiscounts stores the command payload as the discounts menu text.
func (a *Admin) SetDiscounts() Handler {
	return a.textSetter(storage.SettingDiscountsText)
}

// SetExhibition stores the command payload as the exhibition menu text.
func (a *Admin) SetExhibition() Handler {
	return a.textSetter(storage.SettingExhibitionText)
}

// QR renders the payload as a QR code image.
func (a *Admin) QR() Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || strings.TrimSpace(msg.Payload) == "" {
			return c.Send(a.t.T("admin.qr_usage"))
		}

		png, err := qrcode.Encode(strings.TrimSpace(msg.Payload), qrcode.Medium, 512)
		if err != nil {
			return fmt.Errorf("encode qr: %w", err)
		}

		photo := &telebot.Photo{
			File:    telebot.FromReader(bytes.NewReader(png)),
			Caption: a.t.T("admin.qr_caption"),
		}

		return c.Send(photo)
	}
}

func (a *Admin) mediaSetter(settingKey, usageKey, doneKey string) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || msg.Photo == nil {
			return c.Send(a.t.T(usageKey))
		}

		if err := a.svc.SetContent(updateContext(c), settingKey, msg.Photo.FileID); err != nil {
			return err
		}

		return c.Send(a.t.T(doneKey))
	}
}

func (a *Admin) textSetter(settingKey string) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || strings.TrimSpace(msg.Payload) == "" {
			return c.Send(a.t.T("admin.settext_usage"))
		}

		if err := a.svc.SetContent(updateContext(c), settingKey, strings.TrimSpace(msg.Payload)); err != nil {
			return err
		}

		return c.Send(a.t.T("admin.settext_done"))
	}
}

func displayName(u domain.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		if name == "" {
			return "@" + u.Username
		}
		return fmt.Sprintf("%s (@%s)", name, u.Username)
	}
	if name == "" {
		return fmt.Sprintf("id%d", u.TelegramID)
	}
	return name
}
