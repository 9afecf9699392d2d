// Package storage keeps maintenance request attachments on local disk or in
// an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Folders attachments are grouped under.
const (
	FolderRequests = "maintenance-requests"
	FolderClosures = "maintenance-closures"
)

// ErrNotFound is returned by Open for unknown keys.
var ErrNotFound = errors.New("attachment not found")

// ErrInvalidKey is returned for keys that escape the store.
var ErrInvalidKey = errors.New("invalid attachment key")

// Store persists attachment bytes and returns a stable key.
type Store interface {
	Put(ctx context.Context, folder, filename, contentType string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a stored object. Unknown keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out direct download URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

// ObjectKey builds "<folder>/<unix-ms>-<name>".
func ObjectKey(folder, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", folder, now.UnixMilli(), sanitizeName(filename))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "file"
	}
	return name
}

// cleanKey rejects absolute keys and any key that walks out of the store.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
