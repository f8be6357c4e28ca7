package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoMap/config"
	"photoMap/exiftest"
	"photoMap/report"
	"photoMap/store"
	"photoMap/thumbnail"
)

// photoDir writes one photo with EXIF GPS, one without EXIF but with a sidecar, and one corrupt file.
func photoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "gps.jpg", exiftest.JPEG(exiftest.Fields{
		Make:             "Canon",
		Model:            "EOS 5D",
		DateTimeOriginal: "2021:07:04 10:00:00",
		GPS: &exiftest.GPS{
			LatRef: "N", Lat: exiftest.DMS(51, 30, 26),
			LonRef: "W", Lon: exiftest.DMS(0, 7, 39),
		},
	}))
	exiftest.WriteFile(t, dir, "plain.jpg", exiftest.PlainJPEG())
	exiftest.WriteFile(t, dir, "plain.jpg.json", []byte(`{"geoData": {"latitude": 35.68, "longitude": 139.69}}`))
	exiftest.WriteFile(t, dir, "broken.jpg", exiftest.Corrupt())
	return dir
}

func testOptions(t *testing.T, images string) BuildOptions {
	cfg := config.Default()
	cfg.Workers = 2
	return BuildOptions{
		ImagesDir: images,
		OutHTML:   filepath.Join(t.TempDir(), "out", "map.html"),
		Config:    cfg,
	}
}

func TestRunBuildEndToEnd(t *testing.T) {
	log, _ := test.NewNullLogger()
	opts := testOptions(t, photoDir(t))
	status := NewBuildStatus()
	require.True(t, status.Begin())

	sum, err := runBuild(context.Background(), opts, log, status)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Scanned)
	assert.Equal(t, 2, sum.Located)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Thumbs)
	assert.NotEmpty(t, sum.RunID)

	out := opts.OutDir()
	for _, name := range []string{"map.html", report.GeoJSONName, report.CSVName, report.SkippedName, store.FileName} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	skipped, err := os.ReadFile(filepath.Join(out, report.SkippedName))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(skipped), "broken.jpg"))

	raw, err := os.ReadFile(filepath.Join(out, report.GeoJSONName))
	require.NoError(t, err)
	var fc report.FeatureCollection
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 2)
	for _, f := range fc.Features {
		thumb, ok := f.Properties["thumb"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(thumb, thumbnail.Dir+"/"))
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(thumb)))
	}

	st := status.Snapshot()
	assert.Equal(t, "completed", st.Status)
	assert.Equal(t, int64(3), st.Processed)
	assert.Equal(t, int64(2), st.Located)
	assert.Equal(t, sum.RunID, st.RunID)
}

func TestRunBuildReusesIndex(t *testing.T) {
	log, _ := test.NewNullLogger()
	opts := testOptions(t, photoDir(t))

	_, err := runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)

	sum, err := runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Cached)
	assert.Equal(t, 2, sum.Located)

	opts.NoCache = true
	sum, err = runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Cached)
	assert.Equal(t, 2, sum.Located)

	db, err := store.Open(filepath.Join(opts.OutDir(), store.FileName))
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(0, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunBuildPicksUpNewSidecar(t *testing.T) {
	log, _ := test.NewNullLogger()
	dir := t.TempDir()
	exiftest.WriteFile(t, dir, "plain.jpg", exiftest.PlainJPEG())
	opts := testOptions(t, dir)

	sum, err := runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Located)

	exiftest.WriteFile(t, dir, "plain.jpg.json", []byte(`{"geoData": {"latitude": 35.68, "longitude": 139.69}}`))
	sum, err = runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Cached)
	assert.Equal(t, 1, sum.Located)

	sum, err = runBuild(context.Background(), opts, log, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cached)
	assert.Equal(t, 1, sum.Located)
}

func TestRunBuildMissingImages(t *testing.T) {
	log, _ := test.NewNullLogger()
	opts := testOptions(t, filepath.Join(t.TempDir(), "nope"))
	status := NewBuildStatus()
	require.True(t, status.Begin())

	_, err := runBuild(context.Background(), opts, log, status)
	require.ErrorIs(t, err, errImagesDir)
	assert.Equal(t, 2, exitCode(err))
	assert.Equal(t, "error", status.Snapshot().Status)
	assert.NoDirExists(t, opts.OutDir())
}

func TestBuildStatusBegin(t *testing.T) {
	s := NewBuildStatus()
	assert.Equal(t, "idle", s.Snapshot().Status)
	require.True(t, s.Begin())
	assert.False(t, s.Begin(), "a running build blocks another")
	s.finish(nil)
	assert.True(t, s.Begin())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(assert.AnError))
}

func TestDemo(t *testing.T) {
	out := filepath.Join(t.TempDir(), "map.html")
	fc, err := runDemo(out, config.Default(), 1)
	require.NoError(t, err)
	require.Len(t, fc.Features, demoCount)
	assert.FileExists(t, out)
	assert.FileExists(t, filepath.Join(filepath.Dir(out), report.GeoJSONName))

	for _, f := range fc.Features {
		lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		near := false
		for _, c := range demoCities {
			if lat >= c.Lat-demoSpread && lat <= c.Lat+demoSpread && lon >= c.Lon-demoSpread && lon <= c.Lon+demoSpread {
				near = true
				break
			}
		}
		assert.True(t, near, "point %v,%v is outside every cluster", lat, lon)
	}
	assert.Equal(t, "demo/photo_00001.jpg", fc.Features[0].Properties["path"])
	assert.Nil(t, fc.Features[0].Properties["thumb"])
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cmd := buildCmd
	f := cmd.Flags()
	require.NoError(t, f.Set("no-cluster", "true"))
	require.NoError(t, f.Set("point-radius", "9"))
	t.Cleanup(func() {
		_ = f.Set("no-cluster", "false")
		_ = f.Set("point-radius", "0")
		f.Lookup("no-cluster").Changed = false
		f.Lookup("point-radius").Changed = false
	})

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.False(t, cfg.Cluster)
	assert.Equal(t, 9, cfg.PointRadius)
	assert.True(t, cfg.IncludeHeat, "unset flags keep the config value")
}
