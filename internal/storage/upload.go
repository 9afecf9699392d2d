package storage

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ukydev/plant-maintenance/internal/apperr"
)

// DefaultMaxFileBytes is the per-file upload limit.
const DefaultMaxFileBytes = 5 * 1024 * 1024

// DefaultAllowedTypes are the attachment types accepted.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// Uploader validates multipart files and saves them to a Store.
type Uploader struct {
	store    Store
	maxBytes int64
	maxFiles int
	allowed  []string
}

// NewUploader creates an uploader. Zero limits fall back to the defaults.
func NewUploader(store Store, maxBytes int64, maxFiles int, allowed []string) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if maxFiles <= 0 {
		maxFiles = 10
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	return &Uploader{store: store, maxBytes: maxBytes, maxFiles: maxFiles, allowed: allowed}
}

// Validate checks size and sniffed content type, returning the detected type.
func (u *Uploader) Validate(fh *multipart.FileHeader) (string, error) {
	if fh.Size > u.maxBytes {
		return "", apperr.Validation(fmt.Sprintf("file %q exceeds %d bytes", fh.Filename, u.maxBytes), nil)
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperr.Validation(fmt.Sprintf("cannot read file %q", fh.Filename), err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", apperr.Validation(fmt.Sprintf("cannot detect type of %q", fh.Filename), err)
	}
	if !mimetype.EqualsAny(mtype.String(), u.allowed...) {
		return "", apperr.Validation(fmt.Sprintf("invalid file type %s for %q", mtype.String(), fh.Filename), nil)
	}
	return mtype.String(), nil
}

// SaveAll validates every file first, then stores them under folder and
// returns their keys in order. When a file cannot be stored the files saved
// before it are removed again.
func (u *Uploader) SaveAll(ctx context.Context, folder string, files []*multipart.FileHeader) ([]string, error) {
	if len(files) > u.maxFiles {
		return nil, apperr.Validation(fmt.Sprintf("at most %d files per upload", u.maxFiles), nil)
	}
	types := make([]string, len(files))
	for i, fh := range files {
		ct, err := u.Validate(fh)
		if err != nil {
			return nil, err
		}
		types[i] = ct
	}

	keys := make([]string, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			u.Discard(ctx, keys)
			return nil, apperr.Internal("open upload", err)
		}
		key, err := u.store.Put(ctx, folder, fh.Filename, types[i], f, fh.Size)
		f.Close()
		if err != nil {
			u.Discard(ctx, keys)
			return nil, apperr.Internal("store attachment", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Discard removes stored attachments that ended up unreferenced and returns
// the keys that could not be removed.
func (u *Uploader) Discard(ctx context.Context, keys []string) []string {
	var failed []string
	for _, key := range keys {
		if err := u.store.Delete(ctx, key); err != nil {
			failed = append(failed, key)
		}
	}
	return failed
}
