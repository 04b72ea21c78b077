package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/messages"
	"github.com/Vovarama1992/talker_bot/internal/observability"
	"github.com/Vovarama1992/talker_bot/internal/tools"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

var keys = []string{"got_video", "wait_audio_convertion", "failed_audio_convertion", "send_video"}

func testCatalog() *messages.Catalog {
	m := map[string]map[string]string{}
	for _, k := range keys {
		m[k] = map[string]string{"en": k}
	}
	return messages.New(m)
}

type harness struct {
	orch    *Orchestrator
	inv     *fakeInvoker
	stager  *media.Stager
	reply   *recordingReplier
	presets map[user.VoiceMode]string
	ref     string
}

func newHarness(t *testing.T, voices staticVoices, policy media.Policy) *harness {
	t.Helper()
	root := t.TempDir()
	log := zap.NewNop().Sugar()

	presetDir := t.TempDir()
	presets := map[user.VoiceMode]string{
		user.VoiceMale:   filepath.Join(presetDir, "male.wav"),
		user.VoiceFemale: filepath.Join(presetDir, "female.wav"),
	}

	stager := media.NewStager(filepath.Join(root, "uploads"), log)
	require.NoError(t, os.MkdirAll(stager.UserDir("alice"), 0o755))
	ref := filepath.Join(stager.UserDir("alice"), "photo.jpg")
	require.NoError(t, os.WriteFile(ref, []byte("img"), 0o644))

	animations := filepath.Join(root, "animations")
	require.NoError(t, os.MkdirAll(animations, 0o755))

	inv := &fakeInvoker{outDir: animations, failOn: map[string]error{}}
	orch := NewOrchestrator(inv, voices, testCatalog(), stager, policy, presets, 1, log).
		WithMetrics(observability.NewMetrics("test"))

	return &harness{orch: orch, inv: inv, stager: stager, reply: &recordingReplier{}, presets: presets, ref: ref}
}

func (h *harness) job() Job {
	return Job{
		UserID:         "alice",
		Lang:           "en",
		ReferenceImage: h.ref,
		Driving:        Driving{InboundID: "note1", Ext: ".mp4", Payload: payload("video")},
		Reply:          h.reply,
	}
}

func TestRunOriginalVoiceSkipsReplacement(t *testing.T) {
	h := newHarness(t, staticVoices{}, media.Policy{})

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)

	assert.True(t, res.Delivered)
	assert.False(t, res.VoiceReplaced)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"synthesize"}, h.inv.calls)
	assert.Equal(t, []string{res.Output}, h.reply.videos)
	assert.Equal(t, []string{"got_video", "send_video"}, h.reply.texts)
}

func TestRunMalePresetReplacesVoice(t *testing.T) {
	h := newHarness(t, staticVoices{"alice": user.VoiceMale}, media.Policy{})

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)

	assert.True(t, res.VoiceReplaced)
	assert.NoError(t, res.VoiceErr)
	assert.Equal(t, []string{"synthesize", "extract", "convert", "mux"}, h.inv.calls)
	assert.Equal(t, h.presets[user.VoiceMale], h.inv.convertArgs[1])
	assert.Contains(t, res.Output, "_voiced.mp4")
	assert.Equal(t, []string{res.Output}, h.reply.videos)
	assert.Equal(t, []string{"got_video", "wait_audio_convertion", "send_video"}, h.reply.texts)
}

func TestRunVoiceFailureDeliversOriginal(t *testing.T) {
	h := newHarness(t, staticVoices{"alice": user.VoiceFemale}, media.Policy{})
	h.inv.failOn["convert"] = &tools.ToolError{Tool: "voice-conversion", ExitCode: 1, Stderr: "cuda oom"}

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)

	assert.True(t, res.Delivered)
	assert.False(t, res.VoiceReplaced)
	assert.ErrorIs(t, res.VoiceErr, ErrVoiceReplacementFailed)
	assert.NotContains(t, h.inv.calls, "mux")
	require.Len(t, h.reply.videos, 1)
	assert.NotContains(t, h.reply.videos[0], "_voiced")
	assert.Contains(t, h.reply.texts, "failed_audio_convertion")
}

func TestRunCustomVoiceWithoutSampleDegrades(t *testing.T) {
	h := newHarness(t, staticVoices{"alice": user.VoiceCustom}, media.Policy{})

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)

	assert.ErrorIs(t, res.VoiceErr, ErrVoiceReplacementFailed)
	assert.Equal(t, []string{"synthesize"}, h.inv.calls)
	assert.True(t, res.Delivered)
}

func TestRunCustomVoiceUsesUploadedSample(t *testing.T) {
	h := newHarness(t, staticVoices{"alice": user.VoiceCustom}, media.Policy{})
	sample := h.stager.CustomVoicePath("alice")
	require.NoError(t, os.WriteFile(sample, []byte("wav"), 0o644))

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)

	assert.True(t, res.VoiceReplaced)
	assert.Equal(t, sample, h.inv.convertArgs[1])
}

func TestRunGenerationFailure(t *testing.T) {
	h := newHarness(t, staticVoices{"alice": user.VoiceMale}, media.Policy{CleanupInputs: true})
	h.inv.failOn["synthesize"] = &tools.ToolError{Tool: "liveportrait", ExitCode: 2}

	res, err := h.orch.Run(context.Background(), h.job())
	require.ErrorIs(t, err, ErrGenerationFailed)

	assert.False(t, res.Delivered)
	assert.Empty(t, h.reply.videos)
	assert.Equal(t, []string{"synthesize"}, h.inv.calls)
	assert.NoFileExists(t, h.ref)
}

func TestRunStagingFailure(t *testing.T) {
	h := newHarness(t, staticVoices{}, media.Policy{})
	job := h.job()
	job.Driving.Payload = nil

	_, err := h.orch.Run(context.Background(), job)
	require.ErrorIs(t, err, ErrStagingIO)
	assert.Empty(t, h.inv.calls)
	assert.Empty(t, h.reply.texts)
}

func TestRunDeliveryFailure(t *testing.T) {
	h := newHarness(t, staticVoices{}, media.Policy{})
	h.reply.sendErr = errBoom

	res, err := h.orch.Run(context.Background(), h.job())
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.False(t, res.Delivered)
}

func TestRunCleanupPolicy(t *testing.T) {
	t.Run("inputs only", func(t *testing.T) {
		h := newHarness(t, staticVoices{"alice": user.VoiceMale}, media.Policy{CleanupInputs: true})
		res, err := h.orch.Run(context.Background(), h.job())
		require.NoError(t, err)

		assert.NoFileExists(t, h.ref)
		assert.FileExists(t, res.Output)
		entries, err := os.ReadDir(h.stager.UserDir("alice"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("inputs and outputs", func(t *testing.T) {
		h := newHarness(t, staticVoices{"alice": user.VoiceMale}, media.Policy{CleanupInputs: true, CleanupOutputs: true})
		res, err := h.orch.Run(context.Background(), h.job())
		require.NoError(t, err)

		assert.NoFileExists(t, res.Output)
		assert.NotEmpty(t, res.Removed)
		entries, err := os.ReadDir(h.inv.outDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotEqual(t, ".mp4", filepath.Ext(e.Name()), e.Name())
		}
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, staticVoices{}, media.Policy{})
		_, err := h.orch.Run(context.Background(), h.job())
		require.NoError(t, err)
		assert.FileExists(t, h.ref)
	})
}

func TestRunArchiveIsBestEffort(t *testing.T) {
	h := newHarness(t, staticVoices{}, media.Policy{})
	arch := &fakeArchiver{err: errBoom}
	h.orch.WithArchiver(arch)

	res, err := h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	ok := &fakeArchiver{}
	h.orch.WithArchiver(ok)
	res, err = h.orch.Run(context.Background(), h.job())
	require.NoError(t, err)
	assert.Equal(t, []string{res.Output}, ok.paths)
}
