package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

type Lifecycle int

const (
	TransientInput Lifecycle = iota
	FinalOutput
)

func (l Lifecycle) String() string {
	if l == FinalOutput {
		return "final-output"
	}
	return "transient-input"
}

// Artifact is a file produced by one pipeline step.
type Artifact struct {
	Path string
	Tag  Lifecycle
}

// Policy decides which artifacts are removed once a run is over.
type Policy struct {
	CleanupInputs  bool
	CleanupOutputs bool
}

// Apply removes every artifact whose lifecycle flag is enabled. Removal is
// best-effort and returns the paths actually deleted.
func (p Policy) Apply(log *zap.SugaredLogger, artifacts []Artifact) []string {
	var removed []string
	for _, a := range artifacts {
		if a.Path == "" {
			continue
		}
		switch {
		case a.Tag == TransientInput && p.CleanupInputs,
			a.Tag == FinalOutput && p.CleanupOutputs:
			if Remove(log, a.Path) {
				removed = append(removed, a.Path)
			}
		}
	}
	return removed
}

// Remove deletes path, treating "already gone" as success. Other errors are
// logged and swallowed.
func Remove(log *zap.SugaredLogger, path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	log.Warnw("[staging] remove failed", "path", path, "err", err)
	return false
}

// SidePath swaps the extension of path, e.g. video.mp4 -> video.pkl.
func SidePath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// SuffixPath inserts a suffix before the extension, e.g. a.mp4 -> a_concat.mp4.
func SuffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// Stem is the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
