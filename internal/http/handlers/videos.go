package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clipstitch/clipstitch/internal/storage"
)

// VideosHandler serves generated videos from the sandboxed output dir.
// Registered on the chi router directly; huma buffers responses, which
// is wrong for multi-hundred-megabyte files.
type VideosHandler struct {
	store  *storage.VideoStore
	logger *slog.Logger
}

// NewVideosHandler creates a videos handler.
func NewVideosHandler(store *storage.VideoStore, logger *slog.Logger) *VideosHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideosHandler{store: store, logger: logger}
}

// Register registers the download route with the router.
func (h *VideosHandler) Register(router chi.Router) {
	router.Get("/videos/{filename}", h.serve)
}

// serve streams one video. Invalid or escaping names 404 like missing
// files so probes learn nothing about the directory layout.
func (h *VideosHandler) serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	f, info, err := h.store.Open(filename)
	if err != nil {
		h.logger.Debug("video not served",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
