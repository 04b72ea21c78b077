package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

// fakeInvoker writes placeholder files so cleanup can be observed.
type fakeInvoker struct {
	mu          sync.Mutex
	outDir      string
	calls       []string
	convertArgs [2]string
	failOn      map[string]error
}

func (f *fakeInvoker) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeInvoker) touch(path string) (string, error) {
	return path, os.WriteFile(path, []byte("x"), 0o644)
}

func (f *fakeInvoker) Synthesize(_ context.Context, ref, driving string) (string, error) {
	if err := f.record("synthesize"); err != nil {
		return "", err
	}
	return f.touch(filepath.Join(f.outDir, media.Stem(ref)+"--"+media.Stem(driving)+".mp4"))
}

func (f *fakeInvoker) ExtractAudio(_ context.Context, video string) (string, error) {
	if err := f.record("extract"); err != nil {
		return "", err
	}
	return f.touch(strings.TrimSuffix(video, ".mp4") + "_audio.wav")
}

func (f *fakeInvoker) ConvertVoice(_ context.Context, src, target string) (string, error) {
	f.mu.Lock()
	f.convertArgs = [2]string{src, target}
	f.mu.Unlock()
	if err := f.record("convert"); err != nil {
		return "", err
	}
	return f.touch(strings.TrimSuffix(src, ".wav") + "_converted.wav")
}

func (f *fakeInvoker) Mux(_ context.Context, video, _ string) (string, error) {
	if err := f.record("mux"); err != nil {
		return "", err
	}
	return f.touch(strings.TrimSuffix(video, ".mp4") + "_voiced.mp4")
}

func (f *fakeInvoker) TranscodeToWav(_ context.Context, input string) (string, error) {
	if err := f.record("transcode"); err != nil {
		return "", err
	}
	return f.touch(strings.TrimSuffix(input, filepath.Ext(input)) + ".wav")
}

type recordingReplier struct {
	mu      sync.Mutex
	texts   []string
	videos  []string
	sendErr error
}

func (r *recordingReplier) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingReplier) SendVideoNote(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.videos = append(r.videos, path)
	return nil
}

type staticVoices map[string]user.VoiceMode

func (s staticVoices) Voice(_ context.Context, username string) user.VoiceMode {
	if v, ok := s[username]; ok {
		return v
	}
	return user.VoiceOriginal
}

type fakeArchiver struct {
	paths []string
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, userID, path string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.paths = append(a.paths, path)
	return userID + "/" + filepath.Base(path), nil
}

func payload(data string) media.Fetcher {
	return media.FetchFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, data)
		return err
	})
}

var errBoom = errors.New("boom")
