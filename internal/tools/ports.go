package tools

import (
	"context"
	"errors"
	"fmt"
)

// Invoker runs the offline models and media converters. Every call is
// synchronous; a failure is always reported through the returned error.
type Invoker interface {
	// Synthesize animates referenceImage with the motion of drivingMedia.
	Synthesize(ctx context.Context, referenceImage, drivingMedia string) (string, error)
	ExtractAudio(ctx context.Context, video string) (string, error)
	ConvertVoice(ctx context.Context, sourceWav, targetWav string) (string, error)
	// Mux puts audio onto the video stream, trimmed to the shorter of the two.
	Mux(ctx context.Context, video, audio string) (string, error)
	TranscodeToWav(ctx context.Context, input string) (string, error)
}

var ErrOutputMissing = errors.New("declared output not found")

// ToolError describes a process that exited unsuccessfully.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
