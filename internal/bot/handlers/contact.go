package handlers

import (
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/keyboard"
	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/registration"
)

// NewContactHandler records a shared phone number. A contact that belongs
// to someone else is refused without touching either record.
func NewContactHandler(svc *registration.Service, t i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		msg := c.Message()
		if sender == nil || msg == nil || msg.Contact == nil {
			return nil
		}

		contact := msg.Contact

		err := svc.SharePhone(updateContext(c), sender.ID, contact.UserID, contact.PhoneNumber)
		if err != nil {
			if errors.Is(err, registration.ErrContactMismatch) {
				return c.Send(t.T("phone.not_yours"))
			}
			return err
		}

		return c.Send(t.T("phone.saved"), keyboard.MainMenu(t))
	}
}

// NewSkipHandler completes onboarding without a phone number.
func NewSkipHandler(svc *registration.Service, t i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		if err := svc.Skip(updateContext(c), sender.ID); err != nil {
			return err
		}

		return c.Send(t.T("phone.skipped"), keyboard.MainMenu(t))
	}
}
