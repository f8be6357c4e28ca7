package main

import (
	"fmt"
	"math/rand"
	"os"

	"photoMap/config"
	"photoMap/geo"
	"photoMap/mapbuild"
	"photoMap/report"
)

// demoCities are the cluster centres of the demo map: Paris, New York, Los Angeles, Tokyo.
var demoCities = []geo.Point{
	{Lat: 48.85, Lon: 2.35},
	{Lat: 40.71, Lon: -74.01},
	{Lat: 34.05, Lon: -118.24},
	{Lat: 35.68, Lon: 139.69},
}

const (
	demoCount  = 1000
	demoSpread = 1.5
)

// demoFeatures returns n synthetic points scattered around demoCities.
func demoFeatures(n int, seed int64) report.FeatureCollection {
	rng := rand.New(rand.NewSource(seed))
	fc := report.FeatureCollection{Type: "FeatureCollection", Features: make([]report.Feature, 0, n)}
	for i := 0; i < n; i++ {
		c := demoCities[rng.Intn(len(demoCities))]
		lat := c.Lat + (rng.Float64()*2-1)*demoSpread
		lon := c.Lon + (rng.Float64()*2-1)*demoSpread
		fc.Features = append(fc.Features, report.NewFeature(lat, lon, map[string]interface{}{
			"path":     fmt.Sprintf("demo/photo_%05d.jpg", i+1),
			"datetime": nil,
			"make":     nil,
			"model":    nil,
			"thumb":    nil,
			"img_rel":  nil,
		}))
	}
	return fc
}

// runDemo writes the demo GeoJSON next to outHTML and renders the map.
func runDemo(outHTML string, cfg config.Config, seed int64) (report.FeatureCollection, error) {
	dir := BuildOptions{OutHTML: outHTML}.OutDir()
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return report.FeatureCollection{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	fc := demoFeatures(demoCount, seed)
	if err := report.WriteGeoJSON(dir, fc); err != nil {
		return fc, fmt.Errorf("write %s: %w", report.GeoJSONName, err)
	}
	return fc, mapbuild.New(cfg).Build(outHTML, fc)
}
