package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/messages"
	"github.com/Vovarama1992/talker_bot/internal/observability"
	"github.com/Vovarama1992/talker_bot/internal/pipeline"
	"github.com/Vovarama1992/talker_bot/internal/tools"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

// turn is the context of one Handle call.
type turn struct {
	ev    Event
	reply Replier
	lang  string
	sess  Session

	// removed users are purged after the caller's lock is released.
	removed []string
}

type step func(ctx context.Context, t *turn) error

type Config struct {
	CropSize             int
	MaxVideoNoteDuration time.Duration
}

type Machine struct {
	users    user.Service
	catalog  *messages.Catalog
	stager   *media.Stager
	tools    tools.Invoker
	runner   Runner
	notifier Notifier
	metrics  *observability.Metrics
	log      *zap.SugaredLogger
	cfg      Config

	table *Table
	locks *Locks

	transitions map[Track]map[Stage]map[EventKind]step
}

func NewMachine(
	users user.Service,
	catalog *messages.Catalog,
	stager *media.Stager,
	inv tools.Invoker,
	runner Runner,
	cfg Config,
	log *zap.SugaredLogger,
) *Machine {
	m := &Machine{
		users:   users,
		catalog: catalog,
		stager:  stager,
		tools:   inv,
		runner:  runner,
		cfg:     cfg,
		log:     log,
		table:   NewTable(),
		locks:   NewLocks(),
	}

	m.transitions = map[Track]map[Stage]map[EventKind]step{
		TrackAnimation: {
			StageIdle: {
				KindPhoto:     m.onReferenceImage,
				KindDocument:  m.onAnimationDocument,
				KindVideo:     m.onMissingReference,
				KindVideoNote: m.onMissingReference,
			},
			StageAwaitingVideo: {
				KindPhoto:     m.onReferenceImage,
				KindDocument:  m.onAnimationDocument,
				KindVideo:     m.onDrivingVideo,
				KindVideoNote: m.onDrivingVideo,
			},
		},
		TrackVoice: {
			StageAwaitingVoice: {
				KindVoice:         m.onVoiceSample,
				KindAudio:         m.onVoiceSample,
				KindAudioDocument: m.onVoiceSample,
				KindDocument:      m.onVoiceDocument,
			},
		},
	}
	return m
}

func (m *Machine) WithNotifier(n Notifier) *Machine {
	m.notifier = n
	return m
}

func (m *Machine) WithMetrics(mt *observability.Metrics) *Machine {
	m.metrics = mt
	return m
}

// Handle dispatches one event for ev.UserID. Calls for the same user are
// serialized, including the pipeline run they may trigger. The returned
// error has already been reported to the user.
func (m *Machine) Handle(ctx context.Context, ev Event, reply Replier) error {
	ev.UserID = user.Normalize(ev.UserID)
	t := &turn{ev: ev, reply: reply}

	err := m.handle(ctx, t)
	for _, name := range t.removed {
		m.Purge(name)
	}
	return err
}

func (m *Machine) handle(ctx context.Context, t *turn) (err error) {
	ev := t.ev
	unlock := m.locks.Lock(ev.UserID)
	defer unlock()

	t.lang = string(m.users.Language(ctx, ev.UserID))
	defer func() {
		m.metrics.Event(string(ev.Kind), eventOutcome(err))
		m.refreshGauges()
	}()

	if !m.users.IsAllowed(ctx, ev.UserID) {
		m.log.Infow("[session] access denied", "user", ev.UserID, "kind", ev.Kind)
		m.say(ctx, t, "access_denied", nil)
		return ErrAccessDenied
	}

	switch ev.Kind {
	case KindCommand:
		return m.command(ctx, t)
	case KindCallback:
		return m.callback(ctx, t)
	}

	track := m.route(ev.UserID)
	t.sess = m.table.Get(track, ev.UserID)

	next, ok := m.transitions[track][t.sess.Stage][ev.Kind]
	if !ok {
		return m.unsupported(ctx, t)
	}
	return next(ctx, t)
}

// Sessions returns the state of every track for username.
func (m *Machine) Sessions(username string) []Session {
	return m.table.Snapshot(user.Normalize(username))
}

// Purge drops everything kept for a removed user: sessions on every track,
// the reference image and the custom voice sample. It waits for a pipeline
// run of that user to finish first.
func (m *Machine) Purge(username string) {
	name := user.Normalize(username)
	if name == "" {
		return
	}
	unlock := m.locks.Lock(name)
	defer unlock()

	m.forget(name)
	media.Remove(m.log, m.stager.CustomVoicePath(name))
}

// forget resets every track of name and drops the retained reference image.
// The caller holds the lock of name.
func (m *Machine) forget(name string) {
	for _, tr := range Tracks {
		prev := m.table.Reset(tr, name)
		if prev.ReferenceImage != "" {
			media.Remove(m.log, prev.ReferenceImage)
		}
	}
	m.refreshGauges()
}

// route sends media to the voice track while a voice upload is pending,
// so a sample never ends up as a driving video.
func (m *Machine) route(userID string) Track {
	if m.table.Get(TrackVoice, userID).Stage != StageIdle {
		return TrackVoice
	}
	return TrackAnimation
}

// ========== animation track ==========

func (m *Machine) onReferenceImage(ctx context.Context, t *turn) error {
	ext := t.ev.Ext
	if ext == "" {
		ext = ".jpg"
	}
	path, err := m.stager.Stage(ctx, t.ev.UserID, t.ev.InboundID, ext, t.ev.Payload)
	if err != nil {
		return m.abort(ctx, t, TrackAnimation, fmt.Errorf("%w: %v", pipeline.ErrStagingIO, err))
	}

	if err := media.CenterCrop(path, m.cfg.CropSize); err != nil {
		media.Remove(m.log, path)
		if errors.Is(err, media.ErrInvalidImage) {
			m.log.Infow("[session] image rejected", "user", t.ev.UserID, "err", err)
			return m.unsupported(ctx, t)
		}
		return m.abort(ctx, t, TrackAnimation, fmt.Errorf("%w: crop: %v", pipeline.ErrStagingIO, err))
	}

	if old := t.sess.ReferenceImage; old != "" && old != path {
		media.Remove(m.log, old)
	}
	m.table.Set(Session{UserID: t.ev.UserID, Track: TrackAnimation, Stage: StageAwaitingVideo, ReferenceImage: path})
	m.log.Infow("[session] reference image stored", "user", t.ev.UserID, "path", path)
	m.say(ctx, t, "got_img", nil)
	return nil
}

func (m *Machine) onAnimationDocument(ctx context.Context, t *turn) error {
	switch {
	case strings.HasPrefix(t.ev.MimeType, "image/"):
		return m.onReferenceImage(ctx, t)
	case strings.HasPrefix(t.ev.MimeType, "video/") && t.sess.Stage == StageAwaitingVideo:
		return m.onDrivingVideo(ctx, t)
	case strings.HasPrefix(t.ev.MimeType, "video/"):
		return m.onMissingReference(ctx, t)
	}
	return m.unsupported(ctx, t)
}

func (m *Machine) onMissingReference(ctx context.Context, t *turn) error {
	m.say(ctx, t, "no_img", nil)
	return ErrMissingReference
}

func (m *Machine) onDrivingVideo(ctx context.Context, t *turn) error {
	if t.ev.Kind == KindVideoNote && t.ev.Duration > m.cfg.MaxVideoNoteDuration {
		m.say(ctx, t, "long_video", map[string]string{
			"max_duration": strconv.Itoa(int(m.cfg.MaxVideoNoteDuration.Seconds())),
		})
		return ErrDurationExceeded
	}

	ext := t.ev.Ext
	if ext == "" {
		ext = ".mp4"
	}
	job := pipeline.Job{
		UserID:         t.ev.UserID,
		Lang:           t.lang,
		ReferenceImage: t.sess.ReferenceImage,
		Driving:        pipeline.Driving{InboundID: t.ev.InboundID, Ext: ext, Payload: t.ev.Payload},
		Reply:          t.reply,
	}

	res, err := m.runner.Run(ctx, job)
	// the reference is consumed by the run whatever its outcome
	m.table.Reset(TrackAnimation, t.ev.UserID)
	if err != nil {
		return m.fail(ctx, t, fmt.Sprintf("run=%s stage=%s", res.RunID, t.sess.Stage), err)
	}
	if res.VoiceErr != nil {
		m.notify(ctx, res.VoiceErr, fmt.Sprintf("user=%s run=%s", t.ev.UserID, res.RunID))
	}
	return nil
}

// ========== voice track ==========

func (m *Machine) onVoiceDocument(ctx context.Context, t *turn) error {
	if strings.HasPrefix(t.ev.MimeType, "audio/") {
		return m.onVoiceSample(ctx, t)
	}
	return m.unsupported(ctx, t)
}

func (m *Machine) onVoiceSample(ctx context.Context, t *turn) error {
	ext := t.ev.Ext
	if ext == "" {
		ext = ".ogg"
	}
	staged, err := m.stager.Stage(ctx, t.ev.UserID, t.ev.InboundID, ext, t.ev.Payload)
	if err != nil {
		return m.abort(ctx, t, TrackVoice, fmt.Errorf("%w: %v", pipeline.ErrStagingIO, err))
	}

	wav, err := m.tools.TranscodeToWav(ctx, staged)
	media.Remove(m.log, staged)
	if err != nil {
		return m.abort(ctx, t, TrackVoice, fmt.Errorf("%w: %v", ErrVoiceSampleFailed, err))
	}

	target := m.stager.CustomVoicePath(t.ev.UserID)
	if err := os.Rename(wav, target); err != nil {
		media.Remove(m.log, wav)
		return m.abort(ctx, t, TrackVoice, fmt.Errorf("%w: %v", pipeline.ErrStagingIO, err))
	}

	if err := m.users.SetVoice(ctx, t.ev.UserID, user.VoiceCustom); err != nil {
		return m.abort(ctx, t, TrackVoice, fmt.Errorf("save voice preference: %w", err))
	}

	m.table.Reset(TrackVoice, t.ev.UserID)
	m.log.Infow("[session] custom voice stored", "user", t.ev.UserID, "path", target)
	m.say(ctx, t, "voice_is_set", nil)
	return nil
}

// ========== failures ==========

func (m *Machine) unsupported(ctx context.Context, t *turn) error {
	m.say(ctx, t, "unsupported_file_type", nil)
	return ErrUnsupportedInput
}

// abort resets the track, drops its reference image and reports err.
func (m *Machine) abort(ctx context.Context, t *turn, track Track, err error) error {
	prev := m.table.Reset(track, t.ev.UserID)
	if prev.ReferenceImage != "" {
		media.Remove(m.log, prev.ReferenceImage)
	}
	return m.fail(ctx, t, fmt.Sprintf("track=%s stage=%s", track, t.sess.Stage), err)
}

func (m *Machine) fail(ctx context.Context, t *turn, details string, err error) error {
	m.log.Errorw("[session] run failed", "user", t.ev.UserID, "stage", t.sess.Stage, "details", details, "err", err)

	if errors.Is(err, pipeline.ErrGenerationFailed) {
		m.say(ctx, t, "generation_failed", nil)
	} else {
		m.say(ctx, t, "file_failed", map[string]string{"e": summary(err)})
	}
	m.notify(ctx, err, fmt.Sprintf("user=%s %s", t.ev.UserID, details))
	return err
}

func (m *Machine) notify(ctx context.Context, err error, details string) {
	if m.notifier == nil {
		return
	}
	if nerr := m.notifier.Notify(ctx, err, details); nerr != nil {
		m.log.Warnw("[session] admin notify failed", "err", nerr)
	}
}

// summary is the user-facing part of err: the failure class, never the
// process output behind it.
func summary(err error) string {
	for _, known := range []error{
		pipeline.ErrStagingIO,
		pipeline.ErrDeliveryFailed,
		ErrVoiceSampleFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

func (m *Machine) say(ctx context.Context, t *turn, key string, args map[string]string) {
	if err := t.reply.SendText(ctx, m.catalog.Format(key, t.lang, args)); err != nil {
		m.log.Warnw("[session] reply failed", "user", t.ev.UserID, "key", key, "err", err)
	}
}

func (m *Machine) refreshGauges() {
	for _, tr := range Tracks {
		m.metrics.SetActiveSessions(string(tr), m.table.Active(tr))
	}
}

func eventOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrNotAuthorized):
		return "denied"
	case errors.Is(err, ErrUnsupportedInput), errors.Is(err, ErrDurationExceeded), errors.Is(err, ErrMissingReference):
		return "rejected"
	}
	return "failed"
}
