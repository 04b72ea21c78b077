package error_notificator

import (
	"context"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegram rejects longer messages
const maxMessageLen = 4000

type Infra struct {
	bot         Sender
	adminChatID int64
	log         *zap.SugaredLogger
}

func NewInfra(adminChatID int64, log *zap.SugaredLogger) *Infra {
	return &Infra{adminChatID: adminChatID, log: log}
}

// SetBot: позволяет передать бота ПОСЛЕ того, как он инициализировался
func (i *Infra) SetBot(bot Sender) {
	i.bot = bot
}

func (i *Infra) Notify(ctx context.Context, err error, details string) error {
	if i.bot == nil || i.adminChatID == 0 {
		i.log.Warnw("[error_notificator] admin chat not configured", "err", err, "details", details)
		return nil
	}

	text := fmt.Sprintf(
		"❗ Ошибка в боте\n\nОшибка: %v\n\nДетали: %s",
		err,
		details,
	)
	text = truncate(text, maxMessageLen)

	msg := tgbotapi.NewMessage(i.adminChatID, text)

	_, sendErr := i.bot.Send(msg)
	if sendErr != nil {
		i.log.Errorw("[error_notificator] send fail", "err", sendErr)
		return sendErr
	}

	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
