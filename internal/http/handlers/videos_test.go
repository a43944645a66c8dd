package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstitch/clipstitch/internal/storage"
)

func newVideosRouter(t *testing.T) (*chi.Mux, *storage.VideoStore) {
	t.Helper()
	store, err := storage.NewVideoStore(t.TempDir())
	require.NoError(t, err)

	router := chi.NewRouter()
	NewVideosHandler(store, nil).Register(router)
	return router, store
}

func TestVideos_ServesFile(t *testing.T) {
	router, store := newVideosRouter(t)
	path := filepath.Join(store.Dir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4-bytes"), 0o644))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/videos/clip.mp4", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "mp4-bytes", rec.Body.String())
}

func TestVideos_SupportsRangeRequests(t *testing.T) {
	router, store := newVideosRouter(t)
	path := filepath.Join(store.Dir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	req := httptest.NewRequest("GET", "/videos/clip.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestVideos_MissingFile(t *testing.T) {
	router, _ := newVideosRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/videos/absent.mp4", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVideos_RejectsBadNames(t *testing.T) {
	router, _ := newVideosRouter(t)

	for _, target := range []string{
		"/videos/%2e%2e%2fescape.mp4",
		"/videos/notes.txt",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "target %s", target)
	}
}
