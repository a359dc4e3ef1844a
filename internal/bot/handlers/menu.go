package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/i18n"
	"github.com/arthall/onboard-bot/internal/registration"
)

// NewMyNumberHandler replies with the sender's giveaway number.
func NewMyNumberHandler(svc *registration.Service, t i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		number, err := svc.GiveawayNumber(updateContext(c), sender.ID)
		if err != nil {
			return err
		}

		if number == 0 {
			return c.Send(t.T("menu.no_number"))
		}

		return c.Send(t.Tf("menu.my_number_reply", number))
	}
}

// NewTextContentHandler serves an admin-managed text block (discounts,
// exhibition info) from the settings store.
func NewTextContentHandler(svc *registration.Service, t i18n.Translator, settingKey string, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		text, err := svc.Content(updateContext(c), settingKey)
		if err != nil {
			return err
		}

		if text == "" {
			return c.Send(t.T("menu.no_content"))
		}

		return c.Send(text)
	}
}

// NewMediaContentHandler serves an admin-uploaded media item by its
// stored file reference.
func NewMediaContentHandler(svc *registration.Service, t i18n.Translator, settingKey string, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		fileID, err := svc.Content(updateContext(c), settingKey)
		if err != nil {
			return err
		}

		if fileID == "" {
			return c.Send(t.T("menu.no_content"))
		}

		photo := &telebot.Photo{File: telebot.File{FileID: fileID}}
		return c.Send(photo)
	}
}
