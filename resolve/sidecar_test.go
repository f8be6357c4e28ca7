package resolve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoMap/exiftest"
	"photoMap/photo"
)

func writeSidecar(t *testing.T, dir, name, body string) {
	t.Helper()
	exiftest.WriteFile(t, dir, name, []byte(body))
}

func TestSidecarCandidates(t *testing.T) {
	assert.Equal(t, []string{"/p/IMG_1.JPG.json", "/p/IMG_1.json"}, SidecarCandidates("/p/IMG_1.JPG"))
}

func TestSidecarPriority(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "a.jpg.json", `{
		"geoData": {"latitude": 1.0, "longitude": 2.0},
		"geoDataExif": {"latitude": 3.0, "longitude": 4.0},
		"location": {"latitude": 5.0, "longitude": 6.0}
	}`)
	out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	require.Equal(t, photo.Found, out.Status)
	require.NotNil(t, out.Meta.Coords)
	assert.Equal(t, 3.0, out.Meta.Coords.Lat)
	assert.Equal(t, 4.0, out.Meta.Coords.Lon)
}

func TestSidecarInvalidPairContinues(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "a.json", `{
		"geoDataExif": {"latitude": "north", "longitude": 4.0},
		"geoData": {"latitude": 10.5},
		"location": {"latitude": "48.85", "longitude": "2.35"}
	}`)
	out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	require.Equal(t, photo.Found, out.Status)
	require.NotNil(t, out.Meta.Coords)
	assert.Equal(t, 48.85, out.Meta.Coords.Lat)
	assert.Equal(t, 2.35, out.Meta.Coords.Lon)
}

func TestSidecarDateTime(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"formatted", `{"photoTakenTime": {"timestamp": "1560000000", "formatted": "Jun 8, 2019"}}`, "Jun 8, 2019"},
		{"timestamp", `{"photoTakenTime": {"timestamp": "1560000000"}}`, "1560000000"},
		{"numeric timestamp", `{"photoTakenTime": {"timestamp": 1560000000}}`, "1560000000"},
		{"creationTime", `{"photoTakenTime": "x", "creationTime": "2019-06-08"}`, "2019-06-08"},
		{"creationTime object", `{"creationTime": {"timestamp": "1"}}`, "1"},
		{"creationTimestamp", `{"creationTimestamp": 1234}`, "1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSidecar(t, dir, "a.jpg.json", tt.body)
			out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
			require.Equal(t, photo.Found, out.Status)
			assert.Equal(t, tt.want, out.Meta.DateTime)
			assert.Nil(t, out.Meta.Coords)
		})
	}
}

func TestSidecarFallsThroughToStemCandidate(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "a.jpg.json", `{"title": "nothing useful"}`)
	writeSidecar(t, dir, "a.json", `{"geoData": {"latitude": 1.5, "longitude": 2.5}}`)
	out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	require.Equal(t, photo.Found, out.Status)
	require.NotNil(t, out.Meta.Coords)
	assert.Equal(t, 1.5, out.Meta.Coords.Lat)
}

func TestSidecarMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "a.jpg.json", `{"geoData": {`)
	out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	assert.Equal(t, photo.Failed, out.Status)
	assert.Error(t, out.Err)

	// A broken first candidate does not hide a good second one.
	writeSidecar(t, dir, "a.json", `{"geoData": {"latitude": 7, "longitude": 8}}`)
	out = NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	require.Equal(t, photo.Found, out.Status)
	assert.Equal(t, 7.0, out.Meta.Coords.Lat)
}

func TestSidecarNotApplicable(t *testing.T) {
	dir := t.TempDir()
	out := NewSidecarReader().Extract(filepath.Join(dir, "a.jpg"))
	assert.Equal(t, photo.NotApplicable, out.Status)

	writeSidecar(t, dir, "b.jpg.json", `[1, 2, 3]`)
	out = NewSidecarReader().Extract(filepath.Join(dir, "b.jpg"))
	assert.Equal(t, photo.NotApplicable, out.Status)
}
