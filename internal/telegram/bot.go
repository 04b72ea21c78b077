package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vovarama1992/talker_bot/internal/session"
)

// runBotLoop: главный цикл получения апдейтов
func (app *BotApp) runBotLoop(ctx context.Context, updates <-chan tgbotapi.Update) {
	app.Log.Infow("[bot_loop] started")
	// a started run is never interrupted, shutdown waits on the mailbox instead
	hctx := context.WithoutCancel(ctx)

	for update := range updates {
		if update.CallbackQuery != nil {
			// всегда отвечаем Telegram
			if _, err := app.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
				app.Log.Warnw("[bot_loop] callback answer failed", "err", err)
			}
		}

		ev, chatID, ok := app.toEvent(update)
		if !ok {
			continue
		}
		app.Log.Infow("[bot_touch]", "user", ev.UserID, "kind", ev.Kind, "update", update.UpdateID)

		reply := &chatReplier{api: app.api, chatID: chatID}
		err := app.Mailbox.Submit(ev.UserID, func() {
			app.dispatch(hctx, ev, reply)
		})
		if err != nil {
			app.Log.Warnw("[bot_loop] dropped update", "user", ev.UserID, "err", err)
		}
	}

	app.Log.Infow("[bot_loop] stopped")
}

func (app *BotApp) dispatch(ctx context.Context, ev session.Event, reply session.Replier) {
	err := app.Handler.Handle(ctx, ev, reply)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrAccessDenied),
		errors.Is(err, session.ErrNotAuthorized),
		errors.Is(err, session.ErrUnsupportedInput),
		errors.Is(err, session.ErrDurationExceeded),
		errors.Is(err, session.ErrMissingReference):
		app.Log.Infow("[dispatch] rejected", "user", ev.UserID, "kind", ev.Kind, "reason", err)
	default:
		app.Log.Errorw("[dispatch] failed", "user", ev.UserID, "kind", ev.Kind, "err", err)
	}
}
