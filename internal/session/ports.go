package session

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/pipeline"
)

var (
	ErrAccessDenied      = errors.New("access denied")
	ErrNotAuthorized     = errors.New("admin command")
	ErrUnsupportedInput  = errors.New("unsupported input")
	ErrDurationExceeded  = errors.New("duration exceeded")
	ErrMissingReference  = errors.New("reference image missing")
	ErrVoiceSampleFailed = errors.New("voice sample failed")
)

// Track is one of the independent conversations a user can have open.
type Track string

const (
	TrackAnimation Track = "animation"
	TrackVoice     Track = "voice"
)

var Tracks = []Track{TrackAnimation, TrackVoice}

type Stage string

const (
	StageIdle          Stage = "idle"
	StageAwaitingVideo Stage = "awaiting_video"
	StageAwaitingVoice Stage = "awaiting_voice"
)

type Session struct {
	UserID         string    `json:"user_id"`
	Track          Track     `json:"track"`
	Stage          Stage     `json:"stage"`
	ReferenceImage string    `json:"reference_image,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type EventKind string

const (
	KindCommand       EventKind = "command"
	KindText          EventKind = "text"
	KindPhoto         EventKind = "photo"
	KindVideo         EventKind = "video"
	KindVideoNote     EventKind = "video_note"
	KindVoice         EventKind = "voice"
	KindAudio         EventKind = "audio"
	KindAudioDocument EventKind = "audio_document"
	KindDocument      EventKind = "document"
	KindCallback      EventKind = "callback"
)

// Event is an inbound chat update already classified by the transport.
type Event struct {
	UserID  string
	Kind    EventKind
	Command string
	Args    []string
	Data    string

	InboundID string
	Ext       string
	MimeType  string
	Duration  time.Duration
	Payload   media.Fetcher
}

type Choice struct {
	Label string
	Data  string
}

type Replier interface {
	pipeline.Replier
	SendChoices(ctx context.Context, text string, choices []Choice) error
}

// Runner executes an animation job. Implemented by pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Notifier forwards unrecoverable failures to the operator.
type Notifier interface {
	Notify(ctx context.Context, err error, details string) error
}
