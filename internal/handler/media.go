package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/localfeed/internal/app"
	"github.com/sakif/localfeed/internal/apperror"
)

// MediaHandler accepts uploads and serves them back.
type MediaHandler struct {
	app      *app.App
	maxBytes int64
	logger   *slog.Logger
}

func NewMediaHandler(a *app.App, maxBytes int64, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{app: a, maxBytes: maxBytes, logger: logger}
}

// HandleUpload is POST /api/media. The body is the raw file; its
// Content-Type header decides between image and video.
func (h *MediaHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1)
	}
	ref, err := h.app.StageMedia(r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperror.ValidationFailed("file", "file is too large")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// HandleServe is GET /media/{id}.
func (h *MediaHandler) HandleServe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	blob, ok := h.app.OpenMedia(id)
	if !ok {
		writeError(w, apperror.NotFound("media", id))
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	http.ServeContent(w, r, blob.ID, time.Time{}, blob.Reader())
}
