package pipeline

import (
	"context"
	"errors"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

var (
	ErrStagingIO              = errors.New("staging failed")
	ErrGenerationFailed       = errors.New("generation failed")
	ErrVoiceReplacementFailed = errors.New("voice replacement failed")
	ErrDeliveryFailed         = errors.New("delivery failed")
)

// Replier is the outbound half of the chat transport for one conversation.
type Replier interface {
	SendText(ctx context.Context, text string) error
	SendVideoNote(ctx context.Context, path string) error
}

type VoicePreferences interface {
	Voice(ctx context.Context, username string) user.VoiceMode
}

// Archiver keeps a copy of a delivered video. Optional.
type Archiver interface {
	Archive(ctx context.Context, userID, path string) (string, error)
}

// Driving is the inbound video or video note that moves the portrait.
type Driving struct {
	InboundID string
	Ext       string
	Payload   media.Fetcher
}

type Job struct {
	RunID          string
	UserID         string
	Lang           string
	ReferenceImage string
	Driving        Driving
	Reply          Replier
}

type Result struct {
	RunID         string
	Output        string
	Delivered     bool
	VoiceReplaced bool
	// VoiceErr is set when voice replacement failed and the original
	// animation was delivered instead.
	VoiceErr error
	Removed  []string
}
