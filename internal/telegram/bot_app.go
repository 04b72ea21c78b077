package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Vovarama1992/talker_bot/internal/session"
)

// Handler consumes classified chat events.
type Handler interface {
	Handle(ctx context.Context, ev session.Event, reply session.Replier) error
}

// BotAPI is the subset of *tgbotapi.BotAPI the transport uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error)
}

type BotApp struct {
	Handler Handler
	Mailbox *session.Mailbox
	Log     *zap.SugaredLogger

	bot      *tgbotapi.BotAPI
	api      BotAPI
	token    string
	fileBase string
	client   *http.Client
}

func NewBotApp(handler Handler, mailbox *session.Mailbox, log *zap.SugaredLogger) *BotApp {
	return &BotApp{
		Handler:  handler,
		Mailbox:  mailbox,
		Log:      log,
		fileBase: tgbotapi.FileEndpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (app *BotApp) InitBot(token string) error {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}
	app.bot = bot
	app.api = bot
	app.token = token
	app.Log.Infow("[bot_app] ready", "username", "@"+bot.Self.UserName)
	return nil
}

func (app *BotApp) GetBot() *tgbotapi.BotAPI {
	return app.bot
}

// Run polls updates until ctx is cancelled.
func (app *BotApp) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := app.bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		app.bot.StopReceivingUpdates()
	}()

	app.runBotLoop(ctx, updates)
}
