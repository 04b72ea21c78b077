package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Vovarama1992/talker_bot/internal/user"
)

const (
	callbackLang  = "lang:"
	callbackVoice = "voice:"
)

var languageNames = map[user.Language]string{
	"en": "English",
	"de": "Deutsch",
	"ru": "Русский",
}

func (m *Machine) command(ctx context.Context, t *turn) error {
	switch strings.ToLower(t.ev.Command) {
	case "start":
		m.say(ctx, t, "welcome", nil)
		return nil
	case "set_lang":
		return m.reply(ctx, t, "choose_lang", m.languageChoices())
	case "set_voice":
		return m.reply(ctx, t, "choose_voice", m.voiceChoices(t))
	case "upload_voice":
		m.table.Set(Session{UserID: t.ev.UserID, Track: TrackVoice, Stage: StageAwaitingVoice})
		m.say(ctx, t, "send_voice", nil)
		return nil
	case "cancel":
		m.forget(t.ev.UserID)
		m.say(ctx, t, "cancel", nil)
		return nil
	case "add_user":
		return m.admin(ctx, t, "add_user", func(name string) error { return m.addUser(ctx, t, name, false) })
	case "add_admin":
		return m.admin(ctx, t, "add_admin", func(name string) error { return m.addUser(ctx, t, name, true) })
	case "del_user":
		return m.admin(ctx, t, "specify_username", func(name string) error { return m.removeUser(ctx, t, name) })
	case "show_users":
		if !m.users.IsAdmin(ctx, t.ev.UserID) {
			m.say(ctx, t, "not_authorized", nil)
			return ErrNotAuthorized
		}
		return m.showUsers(ctx, t)
	}
	m.say(ctx, t, "unknown_command", nil)
	return nil
}

// admin checks rights and arguments, then applies fn to every username argument.
func (m *Machine) admin(ctx context.Context, t *turn, usageKey string, fn func(name string) error) error {
	if !m.users.IsAdmin(ctx, t.ev.UserID) {
		m.say(ctx, t, "not_authorized", nil)
		return ErrNotAuthorized
	}

	var names []string
	for _, a := range t.ev.Args {
		if n := user.Normalize(a); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		m.say(ctx, t, usageKey, nil)
		return nil
	}

	var errs []error
	for _, n := range names {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Machine) addUser(ctx context.Context, t *turn, name string, isAdmin bool) error {
	args := map[string]string{"username": name}
	if m.users.IsAllowed(ctx, name) && (!isAdmin || m.users.IsAdmin(ctx, name)) {
		m.say(ctx, t, "user_exists", args)
		return nil
	}
	if err := m.users.AddUser(ctx, name, isAdmin); err != nil {
		m.log.Errorw("[session] add user failed", "user", t.ev.UserID, "target", name, "err", err)
		m.say(ctx, t, "internal_error", nil)
		return err
	}
	m.log.Infow("[session] user added", "by", t.ev.UserID, "target", name, "admin", isAdmin)
	m.say(ctx, t, "user_added", args)
	return nil
}

func (m *Machine) removeUser(ctx context.Context, t *turn, name string) error {
	args := map[string]string{"username": name}
	err := m.users.RemoveUser(ctx, name)
	switch {
	case errors.Is(err, user.ErrProtectedUser):
		m.say(ctx, t, "cannot_remove_admin", args)
		return nil
	case errors.Is(err, user.ErrNotFound):
		m.say(ctx, t, "user_not_found", args)
		return nil
	case err != nil:
		m.log.Errorw("[session] remove user failed", "user", t.ev.UserID, "target", name, "err", err)
		m.say(ctx, t, "internal_error", nil)
		return err
	}
	t.removed = append(t.removed, name)
	m.log.Infow("[session] user removed", "by", t.ev.UserID, "target", name)
	m.say(ctx, t, "user_removed", args)
	return nil
}

func (m *Machine) showUsers(ctx context.Context, t *turn) error {
	list, err := m.users.ListUsers(ctx)
	if err != nil {
		m.log.Errorw("[session] list users failed", "err", err)
		m.say(ctx, t, "internal_error", nil)
		return err
	}
	lines := make([]string, 0, len(list))
	for _, u := range list {
		line := fmt.Sprintf("@%s  %s  %s", u.Username, u.Language, u.Voice)
		if u.IsAdmin {
			line += "  admin"
		}
		lines = append(lines, line)
	}
	m.say(ctx, t, "show_users", map[string]string{"users": strings.Join(lines, "\n")})
	return nil
}

// ========== callbacks ==========

func (m *Machine) callback(ctx context.Context, t *turn) error {
	data := t.ev.Data
	switch {
	case strings.HasPrefix(data, callbackLang):
		lang := user.Language(strings.TrimPrefix(data, callbackLang))
		if err := m.users.SetLanguage(ctx, t.ev.UserID, lang); err != nil {
			if errors.Is(err, user.ErrUnsupportedLanguage) {
				return m.unsupported(ctx, t)
			}
			return m.fail(ctx, t, "set_lang", err)
		}
		t.lang = string(lang)
		m.say(ctx, t, "lang_is_set", map[string]string{"lang": languageName(lang)})
		return nil

	case strings.HasPrefix(data, callbackVoice):
		voice, ok := user.ParseVoiceMode(strings.TrimPrefix(data, callbackVoice))
		if !ok {
			return m.unsupported(ctx, t)
		}
		if voice == user.VoiceCustom && !m.stager.HasCustomVoice(t.ev.UserID) {
			m.say(ctx, t, "no_custom_voice", nil)
			return ErrMissingReference
		}
		if err := m.users.SetVoice(ctx, t.ev.UserID, voice); err != nil {
			return m.fail(ctx, t, "set_voice", err)
		}
		m.say(ctx, t, "voice_selected", map[string]string{"voice": m.catalog.Get("voice_"+string(voice), t.lang)})
		return nil
	}
	return m.unsupported(ctx, t)
}

func (m *Machine) languageChoices() []Choice {
	langs := m.users.SupportedLanguages()
	out := make([]Choice, 0, len(langs))
	for _, l := range langs {
		out = append(out, Choice{Label: languageName(l), Data: callbackLang + string(l)})
	}
	return out
}

// voiceChoices offers the custom voice only once a sample exists.
func (m *Machine) voiceChoices(t *turn) []Choice {
	modes := []user.VoiceMode{user.VoiceOriginal, user.VoiceMale, user.VoiceFemale}
	if m.stager.HasCustomVoice(t.ev.UserID) {
		modes = append(modes, user.VoiceCustom)
	}
	out := make([]Choice, 0, len(modes))
	for _, v := range modes {
		out = append(out, Choice{Label: m.catalog.Get("voice_"+string(v), t.lang), Data: callbackVoice + string(v)})
	}
	return out
}

func (m *Machine) reply(ctx context.Context, t *turn, key string, choices []Choice) error {
	if err := t.reply.SendChoices(ctx, m.catalog.Get(key, t.lang), choices); err != nil {
		m.log.Warnw("[session] reply failed", "user", t.ev.UserID, "key", key, "err", err)
	}
	return nil
}

func languageName(l user.Language) string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return strings.ToUpper(string(l))
}

