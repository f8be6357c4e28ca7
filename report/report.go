// Package report collects resolved records and writes the files the map and users consume.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"photoMap/photo"
)

const (
	GeoJSONName = "photos.geojson"
	CSVName     = "photos.csv"
	SkippedName = "skipped.txt"
)

// Repository keeps the records of one run in insertion order. It is not safe for concurrent use.
type Repository struct {
	items   []photo.Record
	skipped []string
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Add keeps rec; it shows up in the CSV and, when it has GPS, on the map.
func (r *Repository) Add(rec photo.Record) {
	r.items = append(r.items, rec)
}

// Skip lists path in skipped.txt.
func (r *Repository) Skip(path string) {
	r.skipped = append(r.skipped, path)
}

// Items returns a copy of the records.
func (r *Repository) Items() []photo.Record {
	return append([]photo.Record(nil), r.items...)
}

// Skipped returns a copy of the skipped paths.
func (r *Repository) Skipped() []string {
	return append([]string(nil), r.skipped...)
}

// Located returns the records that carry coordinates.
func (r *Repository) Located() []photo.Record {
	var out []photo.Record
	for _, rec := range r.items {
		if rec.HasGPS() {
			out = append(out, rec)
		}
	}
	return out
}

// Points returns [lat, lon] for every located record.
func (r *Repository) Points() [][2]float64 {
	var pts [][2]float64
	for _, rec := range r.items {
		if rec.HasGPS() {
			pts = append(pts, [2]float64{rec.Coords.Lat, rec.Coords.Lon})
		}
	}
	return pts
}

// FeatureCollection is a GeoJSON document of Point features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Point feature. Coordinates are [lon, lat].
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry is a GeoJSON Point.
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewFeature returns a Point feature at lat/lon.
func NewFeature(lat, lon float64, props map[string]interface{}) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: [2]float64{lon, lat}},
		Properties: props,
	}
}

// GeoJSON builds the FeatureCollection of located records. thumbs maps a record path to its
// thumbnail path relative to htmlDir; img_rel points from htmlDir to the original.
func (r *Repository) GeoJSON(htmlDir string, thumbs map[string]string) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, rec := range r.items {
		if !rec.HasGPS() {
			continue
		}
		props := map[string]interface{}{}
		for k, v := range rec.Extra {
			props[k] = v
		}
		props["path"] = filepath.Base(rec.Path)
		props["datetime"] = nullable(rec.DateTime)
		props["make"] = nullable(rec.Make)
		props["model"] = nullable(rec.Model)
		props["thumb"] = nullable(thumbs[rec.Path])
		props["img_rel"] = nullable(RelPath(htmlDir, rec.Path))
		fc.Features = append(fc.Features, NewFeature(rec.Coords.Lat, rec.Coords.Lon, props))
	}
	return fc
}

// RelPath returns target relative to fromDir with forward slashes, or "" when there is none.
func RelPath(fromDir, target string) string {
	absDir, err := filepath.Abs(fromDir)
	if err != nil {
		return ""
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// WriteGeoJSON writes fc to dir/photos.geojson.
func WriteGeoJSON(dir string, fc FeatureCollection) error {
	b, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, GeoJSONName), b, 0o644)
}

// CSVHeader returns the fixed columns followed by the sorted union of Extra keys.
func (r *Repository) CSVHeader() []string {
	fixed := []string{"path", "lat", "lon", "datetime", "make", "model"}
	seen := map[string]bool{}
	for _, f := range fixed {
		seen[f] = true
	}
	var extra []string
	for _, rec := range r.items {
		for k := range rec.Extra {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(fixed, extra...)
}

// WriteCSV writes every record, located or not, to dir/photos.csv.
func (r *Repository) WriteCSV(dir string) error {
	f, err := os.Create(filepath.Join(dir, CSVName))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := r.CSVHeader()
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range r.items {
		row := []string{rec.Path, "", "", rec.DateTime, rec.Make, rec.Model}
		if rec.Coords != nil {
			row[1] = strconv.FormatFloat(rec.Coords.Lat, 'f', -1, 64)
			row[2] = strconv.FormatFloat(rec.Coords.Lon, 'f', -1, 64)
		}
		for _, k := range header[6:] {
			row = append(row, rec.Extra[k])
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// WriteSkipped writes the skipped paths, newline separated, to dir/skipped.txt.
func (r *Repository) WriteSkipped(dir string) error {
	return os.WriteFile(filepath.Join(dir, SkippedName), []byte(strings.Join(r.skipped, "\n")), 0o644)
}

// WriteAll creates dir and writes the GeoJSON, CSV and skip list.
func (r *Repository) WriteAll(dir string, thumbs map[string]string) (FeatureCollection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FeatureCollection{}, fmt.Errorf("create output dir: %w", err)
	}
	fc := r.GeoJSON(dir, thumbs)
	if err := WriteGeoJSON(dir, fc); err != nil {
		return fc, fmt.Errorf("write %s: %w", GeoJSONName, err)
	}
	if err := r.WriteCSV(dir); err != nil {
		return fc, fmt.Errorf("write %s: %w", CSVName, err)
	}
	if err := r.WriteSkipped(dir); err != nil {
		return fc, fmt.Errorf("write %s: %w", SkippedName, err)
	}
	return fc, nil
}
