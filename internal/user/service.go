package user

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type service struct {
	infra        Infra
	defaultAdmin string
	languages    []Language
	log          *zap.SugaredLogger
}

// NewService migrates the schema and seeds the default admin before returning.
func NewService(
	ctx context.Context,
	infra Infra,
	defaultAdmin string,
	languages []string,
	log *zap.SugaredLogger,
) (Service, error) {
	admin := Normalize(defaultAdmin)
	if admin == "" {
		return nil, fmt.Errorf("default admin: %w", ErrEmptyUsername)
	}

	s := &service{
		infra:        infra,
		defaultAdmin: admin,
		log:          log,
	}
	for _, l := range languages {
		s.languages = append(s.languages, Language(l))
	}
	if len(s.languages) == 0 {
		s.languages = []Language{DefaultLanguage}
	}

	if err := infra.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}

	seeded, err := infra.Insert(ctx, newUser(admin, true))
	if err != nil {
		return nil, fmt.Errorf("seed default admin: %w", err)
	}
	if seeded {
		log.Infow("[user] default admin seeded", "user", admin)
	}

	return s, nil
}

func newUser(username string, isAdmin bool) User {
	return User{
		Username: username,
		Language: DefaultLanguage,
		Voice:    VoiceOriginal,
		IsAdmin:  isAdmin,
	}
}

func (s *service) get(ctx context.Context, username string) (*User, bool) {
	u, err := s.infra.Get(ctx, Normalize(username))
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.log.Errorw("[user] lookup failed", "user", username, "err", err)
		return nil, false
	}
	return u, true
}

func (s *service) Language(ctx context.Context, username string) Language {
	if u, ok := s.get(ctx, username); ok && s.supported(u.Language) {
		return u.Language
	}
	return DefaultLanguage
}

func (s *service) SetLanguage(ctx context.Context, username string, lang Language) error {
	if !s.supported(lang) {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return s.infra.SetLanguage(ctx, Normalize(username), lang)
}

func (s *service) SupportedLanguages() []Language {
	out := make([]Language, len(s.languages))
	copy(out, s.languages)
	return out
}

func (s *service) supported(lang Language) bool {
	for _, l := range s.languages {
		if l == lang {
			return true
		}
	}
	return false
}

func (s *service) Voice(ctx context.Context, username string) VoiceMode {
	if u, ok := s.get(ctx, username); ok {
		if v, valid := ParseVoiceMode(string(u.Voice)); valid {
			return v
		}
	}
	return VoiceOriginal
}

func (s *service) SetVoice(ctx context.Context, username string, voice VoiceMode) error {
	if _, ok := ParseVoiceMode(string(voice)); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voice)
	}
	return s.infra.SetVoice(ctx, Normalize(username), voice)
}

func (s *service) IsAllowed(ctx context.Context, username string) bool {
	_, ok := s.get(ctx, username)
	return ok
}

func (s *service) IsAdmin(ctx context.Context, username string) bool {
	u, ok := s.get(ctx, username)
	return ok && u.IsAdmin
}

// AddUser inserts or replaces the row, resetting preferences to defaults.
func (s *service) AddUser(ctx context.Context, username string, isAdmin bool) error {
	name := Normalize(username)
	if name == "" {
		return ErrEmptyUsername
	}
	if name == s.defaultAdmin {
		isAdmin = true
	}
	return s.infra.Replace(ctx, newUser(name, isAdmin))
}

func (s *service) RemoveUser(ctx context.Context, username string) error {
	name := Normalize(username)
	if name == "" {
		return ErrEmptyUsername
	}
	if name == s.defaultAdmin {
		return ErrProtectedUser
	}
	return s.infra.Delete(ctx, name)
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	return s.infra.List(ctx)
}

func (s *service) DefaultAdmin() string {
	return s.defaultAdmin
}
