package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/messages"
	"github.com/Vovarama1992/talker_bot/internal/pipeline"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

const defaultAdmin = "bob"

type fakeInvoker struct {
	mu        sync.Mutex
	outDir    string
	calls     []string
	synthRefs []string
	convertTo string
	failOn    map[string]error
}

func (f *fakeInvoker) step(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func write(path string) (string, error) {
	return path, os.WriteFile(path, []byte("x"), 0o644)
}

func (f *fakeInvoker) Synthesize(_ context.Context, ref, driving string) (string, error) {
	f.mu.Lock()
	f.synthRefs = append(f.synthRefs, ref)
	f.mu.Unlock()
	if err := f.step("synthesize"); err != nil {
		return "", err
	}
	return write(filepath.Join(f.outDir, media.Stem(ref)+"--"+media.Stem(driving)+".mp4"))
}

func (f *fakeInvoker) ExtractAudio(_ context.Context, video string) (string, error) {
	if err := f.step("extract"); err != nil {
		return "", err
	}
	return write(media.SuffixPath(video, "_audio") + ".wav")
}

func (f *fakeInvoker) ConvertVoice(_ context.Context, src, target string) (string, error) {
	f.mu.Lock()
	f.convertTo = target
	f.mu.Unlock()
	if err := f.step("convert"); err != nil {
		return "", err
	}
	return write(media.SuffixPath(src, "_converted"))
}

func (f *fakeInvoker) Mux(_ context.Context, video, _ string) (string, error) {
	if err := f.step("mux"); err != nil {
		return "", err
	}
	return write(media.SuffixPath(video, "_voiced"))
}

func (f *fakeInvoker) TranscodeToWav(_ context.Context, input string) (string, error) {
	if err := f.step("transcode"); err != nil {
		return "", err
	}
	if filepath.Ext(input) == ".wav" {
		return write(media.SuffixPath(input, "_pcm"))
	}
	return write(media.SidePath(input, ".wav"))
}

type recorder struct {
	mu      sync.Mutex
	texts   []string
	videos  []string
	choices [][]Choice
}

func (r *recorder) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) SendVideoNote(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos = append(r.videos, path)
	return nil
}

func (r *recorder) SendChoices(_ context.Context, text string, choices []Choice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.choices = append(r.choices, choices)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

type recordingNotifier struct {
	errs []error
}

func (n *recordingNotifier) Notify(_ context.Context, err error, _ string) error {
	n.errs = append(n.errs, err)
	return nil
}

// echoCatalog answers every key with the key itself followed by its args.
func echoCatalog() *messages.Catalog {
	keys := []string{
		"welcome", "access_denied", "not_authorized", "unknown_command", "choose_lang", "lang_is_set",
		"choose_voice", "voice_selected", "voice_orig", "voice_male", "voice_female", "voice_custom",
		"no_custom_voice", "send_voice", "voice_is_set", "got_img", "got_video", "no_img", "long_video",
		"unsupported_file_type", "file_failed", "generation_failed", "wait_audio_convertion",
		"failed_audio_convertion", "send_video", "cancel", "add_user", "add_admin", "specify_username",
		"user_exists", "user_added", "user_removed", "user_not_found", "cannot_remove_admin", "show_users",
		"internal_error",
	}
	m := map[string]map[string]string{}
	for _, k := range keys {
		m[k] = map[string]string{"en": k}
	}
	m["long_video"]["en"] = "long_video {max_duration}"
	m["user_added"]["en"] = "user_added {username}"
	m["show_users"]["en"] = "show_users\n{users}"
	m["lang_is_set"]["de"] = "lang_is_set:de {lang}"
	return messages.New(m)
}

type env struct {
	machine  *Machine
	users    user.Service
	inv      *fakeInvoker
	stager   *media.Stager
	notifier *recordingNotifier
	presets  map[user.VoiceMode]string
	root     string
}

func newEnv(t *testing.T, policy media.Policy) *env {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop().Sugar()
	root := t.TempDir()

	users, err := user.NewService(ctx, user.NewMemoryInfra(), defaultAdmin, []string{"en", "de", "ru"}, log)
	require.NoError(t, err)

	animations := filepath.Join(root, "animations")
	require.NoError(t, os.MkdirAll(animations, 0o755))
	presets := map[user.VoiceMode]string{
		user.VoiceMale:   filepath.Join(root, "male.wav"),
		user.VoiceFemale: filepath.Join(root, "female.wav"),
	}

	stager := media.NewStager(filepath.Join(root, "uploads"), log)
	inv := &fakeInvoker{outDir: animations, failOn: map[string]error{}}
	catalog := echoCatalog()
	orch := pipeline.NewOrchestrator(inv, users, catalog, stager, policy, presets, 1, log)

	notifier := &recordingNotifier{}
	machine := NewMachine(users, catalog, stager, inv, orch, Config{
		CropSize:             64,
		MaxVideoNoteDuration: 60 * time.Second,
	}, log).WithNotifier(notifier)

	return &env{
		machine:  machine,
		users:    users,
		inv:      inv,
		stager:   stager,
		notifier: notifier,
		presets:  presets,
		root:     root,
	}
}

func (e *env) allow(t *testing.T, name string, voice user.VoiceMode) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.users.AddUser(ctx, name, false))
	require.NoError(t, e.users.SetVoice(ctx, name, voice))
}

func (e *env) userFiles(t *testing.T, name string) []string {
	t.Helper()
	entries, err := os.ReadDir(e.stager.UserDir(name))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, en := range entries {
		out = append(out, en.Name())
	}
	return out
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func payload(data []byte) media.Fetcher {
	return media.FetchFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

func photo(t *testing.T, userID, id string) Event {
	return Event{UserID: userID, Kind: KindPhoto, InboundID: id, Ext: ".jpg", Payload: payload(pngBytes(t, 120, 80))}
}

func videoNote(userID, id string, d time.Duration) Event {
	return Event{UserID: userID, Kind: KindVideoNote, InboundID: id, Ext: ".mp4", Duration: d, Payload: payload([]byte("mp4"))}
}

func command(userID, name string, args ...string) Event {
	return Event{UserID: userID, Kind: KindCommand, Command: name, Args: args}
}
