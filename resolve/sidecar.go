package resolve

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"photoMap/geo"
	"photoMap/photo"
)

// Keys holding a {latitude, longitude} object, highest priority first.
var sidecarGeoKeys = []string{"geoDataExif", "geoData", "location"}

// SidecarReader reads Google Takeout style JSON files stored next to a photo.
type SidecarReader struct{}

// NewSidecarReader returns a SidecarReader.
func NewSidecarReader() *SidecarReader {
	return &SidecarReader{}
}

// SidecarCandidates lists the sidecar paths probed for path, in order: "x.jpg.json" then "x.json".
func SidecarCandidates(path string) []string {
	ext := filepath.Ext(path)
	return []string{
		path + ".json",
		strings.TrimSuffix(path, ext) + ".json",
	}
}

// Extract implements Extractor. Only Coords and DateTime are ever set.
func (s *SidecarReader) Extract(path string) photo.Outcome {
	var (
		existing int
		errs     []error
	)
	for _, c := range SidecarCandidates(path) {
		raw, err := os.ReadFile(c)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				existing++
				errs = append(errs, err)
			}
			continue
		}
		existing++

		var doc map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			var target *json.UnmarshalTypeError
			if errors.As(err, &target) {
				// Valid JSON that is not an object carries nothing for us.
				continue
			}
			errs = append(errs, fmt.Errorf("sidecar %s: %w", filepath.Base(c), err))
			continue
		}

		meta := photo.Metadata{
			Coords:   sidecarCoords(doc),
			DateTime: sidecarDateTime(doc),
		}
		if meta.Coords != nil || meta.DateTime != "" {
			return photo.FoundMeta(meta)
		}
	}
	if existing > 0 && len(errs) == existing {
		return photo.Fail(errors.Join(errs...))
	}
	return photo.Skip()
}

func sidecarCoords(doc map[string]interface{}) *geo.Point {
	for _, key := range sidecarGeoKeys {
		obj, ok := doc[key].(map[string]interface{})
		if !ok {
			continue
		}
		lat, latOK := jsonFloat(obj["latitude"])
		lon, lonOK := jsonFloat(obj["longitude"])
		if latOK && lonOK {
			return geo.NewPoint(lat, lon)
		}
	}
	return nil
}

func sidecarDateTime(doc map[string]interface{}) string {
	if taken, ok := doc["photoTakenTime"].(map[string]interface{}); ok {
		return firstText(taken, "formatted", "timestamp")
	}
	for _, key := range []string{"creationTime", "creationTimestamp"} {
		switch v := doc[key].(type) {
		case map[string]interface{}:
			if s := firstText(v, "formatted", "timestamp"); s != "" {
				return s
			}
		default:
			if s := jsonText(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstText(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := jsonText(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// jsonText renders a scalar verbatim; numbers keep their original spelling.
func jsonText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}

func jsonFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
