package user

import (
	"context"
	"errors"
	"strings"
)

type Language string

const DefaultLanguage Language = "en"

// VoiceMode values are stored verbatim in the users.voice column.
type VoiceMode string

const (
	VoiceOriginal VoiceMode = "orig"
	VoiceMale     VoiceMode = "male"
	VoiceFemale   VoiceMode = "female"
	VoiceCustom   VoiceMode = "custom"
)

func ParseVoiceMode(s string) (VoiceMode, bool) {
	switch v := VoiceMode(strings.ToLower(strings.TrimSpace(s))); v {
	case VoiceOriginal, VoiceMale, VoiceFemale, VoiceCustom:
		return v, true
	}
	return "", false
}

// IsPreset reports whether the mode points at a bundled voice sample.
func (v VoiceMode) IsPreset() bool {
	return v == VoiceMale || v == VoiceFemale
}

var (
	ErrNotFound            = errors.New("user not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrUnknownVoice        = errors.New("unknown voice mode")
	ErrProtectedUser       = errors.New("default admin cannot be removed")
	ErrEmptyUsername       = errors.New("empty username")
)

// User is a row of the allow-list together with its preferences.
type User struct {
	Username string    `json:"username"`
	Language Language  `json:"language"`
	Voice    VoiceMode `json:"voice"`
	IsAdmin  bool      `json:"is_admin"`
}

// Infra: хранилище пользователей
type Infra interface {
	Migrate(ctx context.Context) error
	Get(ctx context.Context, username string) (*User, error)
	Insert(ctx context.Context, u User) (bool, error)
	Replace(ctx context.Context, u User) error
	SetLanguage(ctx context.Context, username string, lang Language) error
	SetVoice(ctx context.Context, username string, voice VoiceMode) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]User, error)
}

// Service: бизнес-операции над allow-list и настройками
type Service interface {
	Language(ctx context.Context, username string) Language
	SetLanguage(ctx context.Context, username string, lang Language) error
	SupportedLanguages() []Language

	Voice(ctx context.Context, username string) VoiceMode
	SetVoice(ctx context.Context, username string, voice VoiceMode) error

	IsAllowed(ctx context.Context, username string) bool
	IsAdmin(ctx context.Context, username string) bool

	AddUser(ctx context.Context, username string, isAdmin bool) error
	RemoveUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]User, error)
	DefaultAdmin() string
}

// Normalize strips every '@' and surrounding whitespace from a handle.
func Normalize(username string) string {
	return strings.TrimSpace(strings.ReplaceAll(username, "@", ""))
}
