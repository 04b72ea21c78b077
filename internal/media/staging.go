package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

const customVoiceFile = "custom_voice.wav"

// Fetcher writes the binary payload of an inbound media event into w.
type Fetcher interface {
	Fetch(ctx context.Context, w io.Writer) error
}

type FetchFunc func(ctx context.Context, w io.Writer) error

func (f FetchFunc) Fetch(ctx context.Context, w io.Writer) error { return f(ctx, w) }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Stager owns the per-user working directories under root.
type Stager struct {
	root string
	log  *zap.SugaredLogger
}

func NewStager(root string, log *zap.SugaredLogger) *Stager {
	return &Stager{root: root, log: log}
}

func (s *Stager) UserDir(userID string) string {
	return filepath.Join(s.root, sanitize(userID))
}

// Path builds <root>/<user>/<inboundID>_<xid><ext>. The xid suffix keeps
// re-sent files with the same inbound id from overwriting each other.
func (s *Stager) Path(userID, inboundID, ext string) string {
	base := sanitize(inboundID)
	if base == "" {
		base = "file"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.UserDir(userID), base+"_"+xid.New().String()+ext)
}

// CustomVoicePath is the deterministic location of a user's uploaded voice sample.
func (s *Stager) CustomVoicePath(userID string) string {
	return filepath.Join(s.UserDir(userID), customVoiceFile)
}

func (s *Stager) HasCustomVoice(userID string) bool {
	info, err := os.Stat(s.CustomVoicePath(userID))
	return err == nil && !info.IsDir()
}

// Stage downloads the payload into the user's directory and returns its path.
// A partially written file is removed on failure.
func (s *Stager) Stage(ctx context.Context, userID, inboundID, ext string, src Fetcher) (string, error) {
	if src == nil {
		return "", errors.New("no payload")
	}
	if err := os.MkdirAll(s.UserDir(userID), 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}

	path := s.Path(userID, inboundID, ext)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	counter := &countingWriter{w: out}
	fetchErr := src.Fetch(ctx, counter)
	closeErr := out.Close()
	if fetchErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if fetchErr != nil {
			return "", fmt.Errorf("download: %w", fetchErr)
		}
		return "", fmt.Errorf("close %s: %w", path, closeErr)
	}

	s.log.Infow("[staging] file stored", "user", userID, "path", path, "size", humanize.Bytes(counter.n))
	return path, nil
}

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
