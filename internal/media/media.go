// Package media stores uploaded photos, videos and profile pictures and
// hands out URLs for them.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("media not found")
	ErrEmpty       = errors.New("empty media upload")
	ErrDenied      = errors.New("media access denied")
	ErrInvalidPath = errors.New("invalid media path")
)

// Uploader stores bytes at a path and resolves paths to download URLs.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	DownloadURL(ctx context.Context, path string) (string, error)
}

func checkPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
