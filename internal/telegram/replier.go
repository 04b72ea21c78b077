package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vovarama1992/talker_bot/internal/session"
)

type chatReplier struct {
	api    BotAPI
	chatID int64
}

func (r *chatReplier) SendText(_ context.Context, text string) error {
	_, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
	return err
}

func (r *chatReplier) SendVideoNote(_ context.Context, path string) error {
	_, err := r.api.Send(tgbotapi.NewVideoNote(r.chatID, 0, tgbotapi.FilePath(path)))
	return err
}

func (r *chatReplier) SendChoices(_ context.Context, text string, choices []session.Choice) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyMarkup = BuildChoiceKeyboard(choices)
	_, err := r.api.Send(msg)
	return err
}

// BuildChoiceKeyboard: одна кнопка на строку
func BuildChoiceKeyboard(choices []session.Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
