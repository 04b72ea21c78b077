package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/session"
)

// toEvent classifies an update. ok is false for updates the bot ignores.
func (app *BotApp) toEvent(update tgbotapi.Update) (ev session.Event, chatID int64, ok bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil {
			return ev, 0, false
		}
		return session.Event{
			UserID: userID(cb.From),
			Kind:   session.KindCallback,
			Data:   cb.Data,
		}, cb.Message.Chat.ID, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return ev, 0, false
	}
	ev.UserID = userID(msg.From)
	chatID = msg.Chat.ID

	switch {
	case msg.IsCommand():
		ev.Kind = session.KindCommand
		ev.Command = msg.Command()
		ev.Args = strings.Fields(msg.CommandArguments())

	case len(msg.Photo) > 0:
		// last size is the largest
		p := msg.Photo[len(msg.Photo)-1]
		app.fill(&ev, session.KindPhoto, p.FileID, p.FileUniqueID, ".jpg")

	case msg.VideoNote != nil:
		v := msg.VideoNote
		app.fill(&ev, session.KindVideoNote, v.FileID, v.FileUniqueID, ".mp4")
		ev.Duration = seconds(v.Duration)

	case msg.Video != nil:
		v := msg.Video
		app.fill(&ev, session.KindVideo, v.FileID, v.FileUniqueID, extOr(v.FileName, ".mp4"))
		ev.MimeType = v.MimeType
		ev.Duration = seconds(v.Duration)

	case msg.Voice != nil:
		v := msg.Voice
		app.fill(&ev, session.KindVoice, v.FileID, v.FileUniqueID, ".ogg")
		ev.MimeType = v.MimeType
		ev.Duration = seconds(v.Duration)

	case msg.Audio != nil:
		a := msg.Audio
		app.fill(&ev, session.KindAudio, a.FileID, a.FileUniqueID, extOr(a.FileName, ".mp3"))
		ev.MimeType = a.MimeType
		ev.Duration = seconds(a.Duration)

	case msg.Document != nil:
		d := msg.Document
		kind := session.KindDocument
		if strings.HasPrefix(d.MimeType, "audio/") {
			kind = session.KindAudioDocument
		}
		app.fill(&ev, kind, d.FileID, d.FileUniqueID, extOr(d.FileName, ""))
		ev.MimeType = d.MimeType

	case msg.Text != "":
		ev.Kind = session.KindText
		ev.Data = msg.Text

	default:
		// stickers, locations, etc. still get an "unsupported" answer
		ev.Kind = session.KindDocument
	}
	return ev, chatID, true
}

func (app *BotApp) fill(ev *session.Event, kind session.EventKind, fileID, uniqueID, ext string) {
	ev.Kind = kind
	ev.InboundID = uniqueID
	if ev.InboundID == "" {
		ev.InboundID = fileID
	}
	ev.Ext = ext
	ev.Payload = &fileFetcher{app: app, fileID: fileID}
}

// userID prefers the @username, which the allow-list is keyed by.
func userID(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func extOr(name, def string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	return def
}

// fileFetcher downloads a Telegram file lazily, only when the session
// machine decides to stage it.
type fileFetcher struct {
	app    *BotApp
	fileID string
}

func (f *fileFetcher) Fetch(ctx context.Context, w io.Writer) error {
	file, err := f.app.api.GetFile(tgbotapi.FileConfig{FileID: f.fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}

	url := fmt.Sprintf(f.app.fileBase, f.app.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.app.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

var _ media.Fetcher = (*fileFetcher)(nil)
