package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Archive copies delivered animations into the bucket.
type Archive struct {
	client Client
	now    func() time.Time
	log    *zap.SugaredLogger
}

func NewArchive(client Client, log *zap.SugaredLogger) *Archive {
	return &Archive{client: client, now: time.Now, log: log}
}

// ObjectKey: путь в бакете: <user>/<yyyy-mm-dd>/<file>
func (a *Archive) ObjectKey(userID, path string) string {
	return fmt.Sprintf("%s/%s/%s", userID, a.now().Format("2006-01-02"), filepath.Base(path))
}

// Archive uploads the file at path and returns its public URL.
func (a *Archive) Archive(ctx context.Context, userID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	key := a.ObjectKey(userID, path)
	url, err := a.client.PutObject(ctx, key, f, info.Size(), contentType(path))
	if err != nil {
		return "", err
	}
	a.log.Infow("[storage] archived", "user", userID, "key", key)
	return url, nil
}

// mime.TypeByExtension only knows .mp4 when the host has a mime.types file.
func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".mp4" {
		return "video/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
