// Package mapbuild renders the interactive map page.
package mapbuild

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"photoMap/config"
	"photoMap/geo"
	"photoMap/report"
)

//go:embed map.html.tmpl
var pageTemplate string

var page = template.Must(template.New("map").Parse(pageTemplate))

type pageData struct {
	Title          string
	Center         geo.Point
	Zoom           int
	Bounds         *geo.Bounds
	Basemaps       []config.Basemap
	DefaultBasemap string
	Heat           bool
	HeatPoints     [][2]float64
	Heatmap        config.Heatmap
	Cluster        bool
	PointRadius    int
	Features       report.FeatureCollection
}

// Builder renders map pages with one configuration.
type Builder struct {
	Config config.Config
	Title  string
}

// New returns a Builder for cfg.
func New(cfg config.Config) *Builder {
	return &Builder{Config: cfg, Title: "Photo map"}
}

// Points extracts [lat, lon] pairs from the features.
func Points(fc report.FeatureCollection) []geo.Point {
	pts := make([]geo.Point, 0, len(fc.Features))
	for _, f := range fc.Features {
		pts = append(pts, geo.Point{Lat: f.Geometry.Coordinates[1], Lon: f.Geometry.Coordinates[0]})
	}
	return pts
}

func (b *Builder) data(fc report.FeatureCollection) pageData {
	pts := Points(fc)
	d := pageData{
		Title:          b.Title,
		Center:         geo.Center(pts),
		Zoom:           b.Config.ZoomStart,
		Basemaps:       config.Basemaps,
		DefaultBasemap: b.Config.DefaultBasemap,
		Heat:           b.Config.IncludeHeat && len(pts) > 0,
		HeatPoints:     [][2]float64{},
		Heatmap:        b.Config.Heatmap,
		Cluster:        b.Config.Cluster,
		PointRadius:    b.Config.PointRadius,
		Features:       fc,
	}
	if d.Features.Features == nil {
		d.Features = report.FeatureCollection{Type: "FeatureCollection", Features: []report.Feature{}}
	}
	if bounds, ok := geo.BoundsOf(pts); ok {
		d.Bounds = &bounds
	}
	if d.Heat {
		for _, p := range pts {
			d.HeatPoints = append(d.HeatPoints, [2]float64{p.Lat, p.Lon})
		}
	}
	return d
}

// Render writes the page for fc to w.
func (b *Builder) Render(w io.Writer, fc report.FeatureCollection) error {
	return page.Execute(w, b.data(fc))
}

// Build renders the page for fc into outHTML, creating its directory.
func (b *Builder) Build(outHTML string, fc report.FeatureCollection) error {
	if err := os.MkdirAll(filepath.Dir(outHTML), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var buf bytes.Buffer
	if err := b.Render(&buf, fc); err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	return os.WriteFile(outHTML, buf.Bytes(), 0o644)
}
