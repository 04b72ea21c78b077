package storage

import (
	"context"
	"io"
)

// Низкоуровневый клиент к S3
type Client interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (publicURL string, err error)
}
