package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/storage"
)

const maxAttachmentRead = 64 << 20

// AttachmentHandler serves stored attachment files by key.
type AttachmentHandler struct {
	store storage.Store
	log   logrus.FieldLogger
}

// NewAttachmentHandler creates the handler.
func NewAttachmentHandler(store storage.Store, log logrus.FieldLogger) *AttachmentHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AttachmentHandler{store: store, log: log}
}

// Get redirects to a presigned URL when the store supports it, otherwise
// streams the file.
func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if p, ok := h.store.(storage.Presigner); ok {
		url, err := p.PresignedURL(r.Context(), key)
		if err != nil {
			h.writeStoreError(w, key, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		h.writeStoreError(w, key, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxAttachmentRead))
	if err != nil {
		h.writeStoreError(w, key, err)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *AttachmentHandler) writeStoreError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		apperr.Write(w, apperr.NotFound("attachment not found"))
	case errors.Is(err, storage.ErrInvalidKey):
		apperr.Write(w, apperr.Validation("invalid attachment key", err))
	default:
		h.log.WithError(err).WithField("key", key).Error("failed to read attachment")
		apperr.Write(w, apperr.Internal("failed to read attachment", err))
	}
}
