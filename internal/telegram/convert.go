// Package telegram adapts the Telegram Bot API to the chat layer: it turns
// API updates into bot.Update values and implements bot.Messenger.
package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/rpg-bot/internal/bot"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/model"
)

// Convert maps an API update to the chat layer's form. Updates the bot does
// not handle (edited messages, channel posts, inline queries) and messages
// without a sender report false.
func Convert(u tgbotapi.Update) (bot.Update, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return bot.Update{Message: convertMessage(u.Message)}, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		cb := &bot.Callback{
			ID:   u.CallbackQuery.ID,
			Data: u.CallbackQuery.Data,
			From: convertProfile(u.CallbackQuery.From),
		}
		if u.CallbackQuery.Message != nil {
			cb.Message = convertMessage(u.CallbackQuery.Message)
		}
		return bot.Update{Callback: cb}, true
	}
	return bot.Update{}, false
}

func convertMessage(m *tgbotapi.Message) *bot.Message {
	msg := &bot.Message{
		ID:       m.MessageID,
		Text:     m.Text,
		Keyboard: keyboardOf(m.ReplyMarkup),
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.From != nil {
		msg.From = convertProfile(m.From)
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = convertMessage(m.ReplyToMessage)
	}
	return msg
}

func convertProfile(u *tgbotapi.User) model.Profile {
	return model.Profile{
		TelegramID:   strconv.FormatInt(u.ID, 10),
		Username:     u.UserName,
		FullName:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		LanguageCode: u.LanguageCode,
	}
}

// keyboardOf reads back the inline keyboard attached to a message.
func keyboardOf(markup *tgbotapi.InlineKeyboardMarkup) keyboard.Keyboard {
	if markup == nil || len(markup.InlineKeyboard) == 0 {
		return nil
	}
	kb := make(keyboard.Keyboard, 0, len(markup.InlineKeyboard))
	for _, row := range markup.InlineKeyboard {
		buttons := make([]keyboard.Button, 0, len(row))
		for _, b := range row {
			button := keyboard.Button{Label: b.Text}
			if b.CallbackData != nil {
				button.Data = *b.CallbackData
			}
			if b.URL != nil {
				button.URL = *b.URL
			}
			buttons = append(buttons, button)
		}
		kb = append(kb, buttons)
	}
	return kb
}

// markupOf renders a keyboard for the API. A nil keyboard yields an empty
// markup, which removes the keyboard on edits.
func markupOf(kb keyboard.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
