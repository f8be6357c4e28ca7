package geo

import "math"

// SentinelEpsilon is the magnitude below which both axes of a fix count as (0,0).
const SentinelEpsilon = 1e-9

// Point is a WGS84 coordinate pair. A *Point is either nil or carries both axes.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a pointer to the pair, for optional fields.
func NewPoint(lat, lon float64) *Point {
	return &Point{Lat: lat, Lon: lon}
}

// IsSentinel reports whether the point is the (0,0) "no fix" marker.
func (p Point) IsSentinel() bool {
	return math.Abs(p.Lat) < SentinelEpsilon && math.Abs(p.Lon) < SentinelEpsilon
}

// DropSentinel returns nil for a nil or (0,0) point and p otherwise.
func DropSentinel(p *Point) *Point {
	if p == nil || p.IsSentinel() {
		return nil
	}
	return p
}

// Bounds is a lat/lon bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsOf returns the bounding box of points; ok is false when there are none.
func BoundsOf(points []Point) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinLat: points[0].Lat, MinLon: points[0].Lon, MaxLat: points[0].Lat, MaxLon: points[0].Lon}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b, true
}

// DefaultCenter is used for an empty map.
var DefaultCenter = Point{Lat: 20, Lon: 0}

// Center returns the arithmetic mean of points, or DefaultCenter.
func Center(points []Point) Point {
	if len(points) == 0 {
		return DefaultCenter
	}
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lon: lon / n}
}
