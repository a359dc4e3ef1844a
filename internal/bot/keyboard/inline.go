package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/i18n"
)

// JoinGroup builds an inline keyboard with a single link button to the
// community group. Returns nil when no group URL is configured.
func JoinGroup(t i18n.Translator, groupURL string) *telebot.ReplyMarkup {
	if groupURL == "" {
		return nil
	}

	markup := &telebot.ReplyMarkup{}
	markup.InlineKeyboard = [][]telebot.InlineButton{
		{
			{
				Text: lookup(t, "menu.join_group"),
				URL:  groupURL,
			},
		},
	}

	return markup
}
