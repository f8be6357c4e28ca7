// Package config holds the tunables of a map build.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// Basemap is an XYZ tile source.
type Basemap struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Subdomains  string `json:"subdomains,omitempty"`
	MaxZoom     int    `json:"maxZoom"`
}

// Basemaps are the tile layers offered in the layer control.
var Basemaps = []Basemap{
	{
		Name:        "CartoDB Positron",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
		Subdomains:  "abcd",
		MaxZoom:     20,
	},
	{
		Name:        "CartoDB Dark Matter",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
		Subdomains:  "abcd",
		MaxZoom:     20,
	},
	{
		Name:        "OpenStreetMap",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
		Subdomains:  "abc",
		MaxZoom:     19,
	},
	{
		Name:        "Esri WorldImagery (Satellite)",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Tiles &copy; Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
		MaxZoom:     20,
	},
}

// Heatmap configures the heat layer.
type Heatmap struct {
	MinOpacity float64 `json:"minOpacity"`
	Radius     int     `json:"radius"`
	Blur       int     `json:"blur"`
	MaxZoom    int     `json:"maxZoom"`
}

// Config is the build configuration. Keys missing from a loaded file keep their defaults;
// keys present override them, including false and 0.
type Config struct {
	Recurse        bool     `json:"recurse"`
	Extensions     []string `json:"extensions"`
	Heatmap        Heatmap  `json:"heatmap"`
	PointRadius    int      `json:"pointRadius"`
	Cluster        bool     `json:"cluster"`
	IncludeHeat    bool     `json:"includeHeat"`
	ZoomStart      int      `json:"zoomStart"`
	DefaultBasemap string   `json:"defaultBasemap"`
	ThumbSize      int      `json:"thumbSize"`
	Workers        int      `json:"workers"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Recurse:        true,
		Extensions:     []string{".jpg", ".jpeg", ".png", ".heic", ".heif"},
		Heatmap:        Heatmap{MinOpacity: 0.55, Radius: 16, Blur: 10, MaxZoom: 18},
		PointRadius:    6,
		Cluster:        true,
		IncludeHeat:    true,
		ZoomStart:      2,
		DefaultBasemap: "CartoDB Positron",
		ThumbSize:      256,
		Workers:        runtime.NumCPU(),
	}
}

// DefaultPath is ~/.photomap/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".photomap", "config.json")
}

// Load reads path over the defaults. An empty path tries DefaultPath and silently falls back to
// the defaults when that file does not exist; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// BasemapNames lists the known basemaps, sorted.
func BasemapNames() []string {
	names := make([]string, 0, len(Basemaps))
	for _, b := range Basemaps {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects settings the map cannot render.
func (c Config) Validate() error {
	if c.PointRadius <= 0 {
		return fmt.Errorf("pointRadius must be positive, got %d", c.PointRadius)
	}
	if c.ThumbSize <= 0 {
		return fmt.Errorf("thumbSize must be positive, got %d", c.ThumbSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Heatmap.MinOpacity < 0 || c.Heatmap.MinOpacity > 1 {
		return fmt.Errorf("heatmap.minOpacity must be within [0,1], got %g", c.Heatmap.MinOpacity)
	}
	if len(c.Extensions) == 0 {
		return errors.New("extensions must not be empty")
	}
	for _, b := range Basemaps {
		if b.Name == c.DefaultBasemap {
			return nil
		}
	}
	return fmt.Errorf("unknown defaultBasemap %q (known: %v)", c.DefaultBasemap, BasemapNames())
}
