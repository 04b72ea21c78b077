package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const maxStderr = 2000

type Config struct {
	PythonBin             string
	InferenceScript       string
	AnimationsDir         string
	VoiceConversionScript string
	FFmpegBin             string
}

// ProcessInvoker shells out to LivePortrait, the voice conversion script and ffmpeg.
type ProcessInvoker struct {
	cfg Config
	log *zap.SugaredLogger
}

func NewProcessInvoker(cfg Config, log *zap.SugaredLogger) *ProcessInvoker {
	return &ProcessInvoker{cfg: cfg, log: log}
}

// Synthesize runs LivePortrait; it writes <animations>/<image>--<driving>.mp4.
func (p *ProcessInvoker) Synthesize(ctx context.Context, referenceImage, drivingMedia string) (string, error) {
	err := p.run(ctx, "liveportrait", p.cfg.PythonBin,
		p.cfg.InferenceScript,
		"--source", referenceImage,
		"--driving", drivingMedia,
		"--flag_crop_driving_video",
	)
	if err != nil {
		return "", err
	}

	out := filepath.Join(p.cfg.AnimationsDir, stem(referenceImage)+"--"+stem(drivingMedia)+".mp4")
	return expectFile("liveportrait", out)
}

func (p *ProcessInvoker) ExtractAudio(ctx context.Context, video string) (string, error) {
	out := withSuffix(video, "_audio", ".wav")
	err := p.run(ctx, "ffmpeg-extract", p.cfg.FFmpegBin,
		"-y",
		"-i", video,
		"-vn",
		"-ac", "1",
		"-ar", "22050",
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return expectFile("ffmpeg-extract", out)
}

func (p *ProcessInvoker) ConvertVoice(ctx context.Context, sourceWav, targetWav string) (string, error) {
	out := withSuffix(sourceWav, "_converted", ".wav")
	err := p.run(ctx, "voice-conversion", p.cfg.PythonBin,
		p.cfg.VoiceConversionScript,
		"--source", sourceWav,
		"--target", targetWav,
		"--output", out,
	)
	if err != nil {
		return "", err
	}
	return expectFile("voice-conversion", out)
}

func (p *ProcessInvoker) Mux(ctx context.Context, video, audio string) (string, error) {
	out := withSuffix(video, "_voiced", ".mp4")
	err := p.run(ctx, "ffmpeg-mux", p.cfg.FFmpegBin,
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		out,
	)
	if err != nil {
		return "", err
	}
	return expectFile("ffmpeg-mux", out)
}

func (p *ProcessInvoker) TranscodeToWav(ctx context.Context, input string) (string, error) {
	out := withSuffix(input, "", ".wav")
	if out == input {
		out = withSuffix(input, "_pcm", ".wav")
	}
	err := p.run(ctx, "ffmpeg-wav", p.cfg.FFmpegBin,
		"-y",
		"-i", input,
		"-ac", "1",
		"-ar", "22050",
		out,
	)
	if err != nil {
		return "", err
	}
	return expectFile("ffmpeg-wav", out)
}

func (p *ProcessInvoker) run(ctx context.Context, tool, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.log.Debugw("[tools] exec", "tool", tool, "cmd", name, "args", args)
	if err := cmd.Run(); err != nil {
		te := &ToolError{Tool: tool, ExitCode: -1, Stderr: tail(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		return te
	}
	return nil
}

func expectFile(tool, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%s: %w: %s", tool, ErrOutputMissing, path)
	}
	return path, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func withSuffix(path, suffix, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix + ext
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
