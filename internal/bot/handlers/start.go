package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/keyboard"
	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/registration"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/pkg/metrics"
)

// NewStartHandler registers the sender on first contact and replays the
// welcome for returning users. A fresh registration is followed by the
// group invite, the current announcement, and the phone prompt.
func NewStartHandler(svc *registration.Service, t i18n.Translator, groupURL string, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("start handler invoked without sender")
			return nil
		}

		ctx := updateContext(c)

		result, err := svc.FirstContact(ctx, &domain.User{
			TelegramID: sender.ID,
			Username:   sender.Username,
			FirstName:  sender.FirstName,
			LastName:   sender.LastName,
		})
		if err != nil {
			return err
		}

		if result.AlreadyRegistered {
			return c.Send(t.Tf("start.welcome_back", result.GiveawayNumber), keyboard.MainMenu(t))
		}

		metrics.RecordRegistration(result.GiveawayNumber)

		if err := c.Send(t.Tf("start.welcome", result.GiveawayNumber)); err != nil {
			return err
		}

		if markup := keyboard.JoinGroup(t, groupURL); markup != nil {
			if err := c.Send(t.T("menu.join_group"), markup); err != nil {
				log.Warn("failed to send group invite", slog.Any("error", err))
			}
		}

		if fileID, err := svc.Content(ctx, storage.SettingAnnouncementImage); err == nil && fileID != "" {
			photo := &telebot.Photo{File: telebot.File{FileID: fileID}}
			if err := c.Send(photo); err != nil {
				log.Warn("failed to send announcement", slog.Any("error", err))
			}
		}

		return c.Send(t.T("start.ask_phone"), keyboard.SharePhone(t))
	}
}
