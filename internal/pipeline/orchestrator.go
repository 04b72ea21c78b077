package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/messages"
	"github.com/Vovarama1992/talker_bot/internal/observability"
	"github.com/Vovarama1992/talker_bot/internal/tools"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

var errNoCustomVoice = errors.New("custom voice sample not uploaded")

type Orchestrator struct {
	tools    tools.Invoker
	prefs    VoicePreferences
	catalog  *messages.Catalog
	stager   *media.Stager
	policy   media.Policy
	presets  map[user.VoiceMode]string
	gpu      *semaphore.Weighted
	archiver Archiver
	metrics  *observability.Metrics
	log      *zap.SugaredLogger
}

func NewOrchestrator(
	inv tools.Invoker,
	prefs VoicePreferences,
	catalog *messages.Catalog,
	stager *media.Stager,
	policy media.Policy,
	presets map[user.VoiceMode]string,
	maxJobs int,
	log *zap.SugaredLogger,
) *Orchestrator {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Orchestrator{
		tools:   inv,
		prefs:   prefs,
		catalog: catalog,
		stager:  stager,
		policy:  policy,
		presets: presets,
		gpu:     semaphore.NewWeighted(int64(maxJobs)),
		log:     log,
	}
}

func (o *Orchestrator) WithArchiver(a Archiver) *Orchestrator {
	o.archiver = a
	return o
}

func (o *Orchestrator) WithMetrics(m *observability.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Run executes one animation job end to end. A returned error is one of
// ErrStagingIO, ErrGenerationFailed or ErrDeliveryFailed; voice replacement
// problems only show up in Result.VoiceErr. Staged files are handed to the
// cleanup policy on every path.
func (o *Orchestrator) Run(ctx context.Context, job Job) (res Result, err error) {
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	res.RunID = job.RunID
	log := o.log.With("run", job.RunID, "user", job.UserID)

	artifacts := []media.Artifact{{Path: job.ReferenceImage, Tag: media.TransientInput}}
	defer func() {
		res.Removed = o.policy.Apply(log, artifacts)
		o.metrics.PipelineRun(outcome(err))
	}()

	// 1. staging
	driving, err := o.stager.Stage(ctx, job.UserID, job.Driving.InboundID, job.Driving.Ext, job.Driving.Payload)
	if err != nil {
		log.Errorw("[pipeline] staging failed", "stage", "staging", "err", err)
		return res, fmt.Errorf("%w: %v", ErrStagingIO, err)
	}
	artifacts = append(artifacts,
		media.Artifact{Path: driving, Tag: media.TransientInput},
		media.Artifact{Path: media.SidePath(driving, ".pkl"), Tag: media.TransientInput},
	)
	o.say(ctx, job, "got_video")

	// 2. synthesis
	animation, err := o.synthesize(ctx, job.ReferenceImage, driving)
	if err != nil {
		log.Errorw("[pipeline] synthesis failed", "stage", "synthesis", "err", err)
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	artifacts = append(artifacts,
		media.Artifact{Path: animation, Tag: media.FinalOutput},
		media.Artifact{Path: media.SuffixPath(animation, "_concat"), Tag: media.FinalOutput},
	)
	res.Output = animation

	// 3-4. voice
	if voice := o.prefs.Voice(ctx, job.UserID); voice != user.VoiceOriginal {
		o.say(ctx, job, "wait_audio_convertion")
		voiced, produced, verr := o.replaceVoice(ctx, job.UserID, animation, voice)
		artifacts = append(artifacts, produced...)
		if verr != nil {
			log.Warnw("[pipeline] voice replacement failed, sending original", "stage", "voice", "voice", voice, "err", verr)
			res.VoiceErr = fmt.Errorf("%w: %v", ErrVoiceReplacementFailed, verr)
			o.metrics.VoiceReplaced("failed")
			o.say(ctx, job, "failed_audio_convertion")
		} else {
			res.Output = voiced
			res.VoiceReplaced = true
			o.metrics.VoiceReplaced("ok")
		}
	}

	// 5. delivery
	if err = job.Reply.SendVideoNote(ctx, res.Output); err != nil {
		log.Errorw("[pipeline] delivery failed", "stage", "delivery", "path", res.Output, "err", err)
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	res.Delivered = true
	o.say(ctx, job, "send_video")

	if o.archiver != nil {
		if key, aerr := o.archiver.Archive(ctx, job.UserID, res.Output); aerr != nil {
			log.Warnw("[pipeline] archive failed", "path", res.Output, "err", aerr)
		} else {
			log.Infow("[pipeline] archived", "key", key)
		}
	}

	log.Infow("[pipeline] delivered", "path", res.Output, "voice_replaced", res.VoiceReplaced)
	return res, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, ref, driving string) (string, error) {
	if err := o.gpu.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.gpu.Release(1)

	started := time.Now()
	out, err := o.tools.Synthesize(ctx, ref, driving)
	o.metrics.ObserveSynthesis(time.Since(started))
	return out, err
}

// replaceVoice returns the muxed video together with every intermediate
// file it created, so the caller can clean them up even on failure.
func (o *Orchestrator) replaceVoice(ctx context.Context, userID, video string, voice user.VoiceMode) (string, []media.Artifact, error) {
	var produced []media.Artifact

	target, err := o.targetVoice(userID, voice)
	if err != nil {
		return "", produced, err
	}

	extracted, err := o.tools.ExtractAudio(ctx, video)
	if err != nil {
		return "", produced, fmt.Errorf("extract audio: %w", err)
	}
	produced = append(produced, media.Artifact{Path: extracted, Tag: media.TransientInput})

	if err := o.gpu.Acquire(ctx, 1); err != nil {
		return "", produced, err
	}
	converted, err := o.tools.ConvertVoice(ctx, extracted, target)
	o.gpu.Release(1)
	if err != nil {
		return "", produced, fmt.Errorf("convert voice: %w", err)
	}
	produced = append(produced, media.Artifact{Path: converted, Tag: media.TransientInput})

	voiced, err := o.tools.Mux(ctx, video, converted)
	if err != nil {
		return "", produced, fmt.Errorf("mux: %w", err)
	}
	produced = append(produced, media.Artifact{Path: voiced, Tag: media.FinalOutput})
	return voiced, produced, nil
}

func (o *Orchestrator) targetVoice(userID string, voice user.VoiceMode) (string, error) {
	if voice == user.VoiceCustom {
		if !o.stager.HasCustomVoice(userID) {
			return "", errNoCustomVoice
		}
		return o.stager.CustomVoicePath(userID), nil
	}
	path, ok := o.presets[voice]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %s", user.ErrUnknownVoice, voice)
	}
	return path, nil
}

// say sends a progress line. Transport errors here are logged only.
func (o *Orchestrator) say(ctx context.Context, job Job, key string) {
	if err := job.Reply.SendText(ctx, o.catalog.Get(key, job.Lang)); err != nil {
		o.log.Warnw("[pipeline] reply failed", "user", job.UserID, "key", key, "err", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, ErrStagingIO):
		return "staging_failed"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	}
	return "error"
}
