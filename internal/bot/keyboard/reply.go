// Package keyboard builds the bot's reply and inline keyboards.
package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/i18n"
)

// SharePhone builds the onboarding keyboard with a contact-request button
// and a skip button. One-time: it disappears after the choice.
func SharePhone(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}

	phoneBtn := markup.Contact(lookup(t, "menu.share_phone"))
	skipBtn := markup.Text(lookup(t, "menu.skip"))

	markup.Reply(
		markup.Row(phoneBtn),
		markup.Row(skipBtn),
	)

	return markup
}

// MainMenu builds the localized reply keyboard shown to registered users.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	numberBtn := markup.Text(lookup(t, "menu.my_number"))
	giveawayBtn := markup.Text(lookup(t, "menu.giveaway"))
	discountsBtn := markup.Text(lookup(t, "menu.discounts"))
	exhibitionBtn := markup.Text(lookup(t, "menu.exhibition"))

	markup.Reply(
		markup.Row(numberBtn, giveawayBtn),
		markup.Row(discountsBtn, exhibitionBtn),
	)

	return markup
}

func lookup(t i18n.Translator, key string) string {
	if t == nil {
		return key
	}
	return t.T(key)
}
