package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoMap/exiftest"
	"photoMap/photo"
	"photoMap/store"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	log, _ := test.NewNullLogger()
	opts := testOptions(t, photoDir(t))
	_, err := runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	s := NewServer(context.Background(), opts, log)
	return s, s.Router()
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestServerHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServerPhotos(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/api/photos")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []store.PhotoRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = get(t, h, "/api/photos?gps=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var located []store.PhotoRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &located))
	require.Len(t, located, 2)
	for _, p := range located {
		assert.True(t, p.HasGPS)
		assert.NotEmpty(t, p.Thumb)
	}

	rec = get(t, h, "/api/photos?limit=1&offset=1")
	var page []store.PhotoRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/photos?gps=maybe").Code)

	rec = get(t, h, fmt.Sprintf("/api/photos/%d", all[0].ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var one store.PhotoRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, all[0].Path, one.Path)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/photos/9999").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/photos/abc").Code)
}

func TestServerRuns(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, int64(2), runs[0].Located)
}

func TestServerFiles(t *testing.T) {
	s, h := newTestServer(t)
	db, err := store.Open(s.dbFile)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.ListPhotos(0, 10, store.PhotoFilter{})
	require.NoError(t, err)
	var gpsID int64
	for _, r := range rows {
		if strings.HasSuffix(r.Path, "gps.jpg") {
			gpsID = r.ID
		}
	}
	require.NotZero(t, gpsID)

	rec := get(t, h, fmt.Sprintf("/api/files/%d", gpsID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8}, rec.Body.Bytes()[:2])

	// A photo indexed from outside the images directory is never served.
	outside := exiftest.WriteFile(t, t.TempDir(), "secret.jpg", exiftest.PlainJPEG())
	info, err := os.Stat(outside)
	require.NoError(t, err)
	require.NoError(t, db.UpsertPhoto(photo.Record{Path: outside}, info, ""))
	rows, err = db.ListPhotos(0, 10, store.PhotoFilter{})
	require.NoError(t, err)
	last := rows[len(rows)-1]
	require.Equal(t, outside, last.Path)
	assert.Equal(t, http.StatusForbidden, get(t, h, fmt.Sprintf("/api/files/%d", last.ID)).Code)
}

func TestServerStaticOutput(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/map.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "__PHOTO_FEATURES__")
}

func TestServerBuild(t *testing.T) {
	s, h := newTestServer(t)

	require.True(t, s.Status.Begin())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/build", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	s.Status.finish(nil)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/build", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		var st BuildState
		rec := get(t, h, "/api/build/status")
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			return false
		}
		return st.Status == "completed"
	}, 10*time.Second, 20*time.Millisecond)

	st := s.Status.Snapshot()
	assert.Equal(t, int64(3), st.Processed)
	assert.Equal(t, int64(3), st.Cached)
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/data/img")
	assert.True(t, within(root, filepath.FromSlash("/data/img/a.jpg")))
	assert.True(t, within(root, filepath.FromSlash("/data/img/sub/b.jpg")))
	assert.True(t, within(root, filepath.FromSlash("/data/img/..hidden.jpg")))
	assert.False(t, within(root, filepath.FromSlash("/data/imgx/a.jpg")))
	assert.False(t, within(root, filepath.FromSlash("/data/a.jpg")))
}
