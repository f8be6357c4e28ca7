package photo

import (
	"fmt"

	"photoMap/geo"
)

// Metadata is what a single extraction strategy, or the merge of several, knows about a photo.
// Empty strings and a nil Coords mean "absent".
type Metadata struct {
	Coords   *geo.Point        `json:"coords,omitempty"`
	DateTime string            `json:"datetime,omitempty"`
	Make     string            `json:"make,omitempty"`
	Model    string            `json:"model,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether no field carries a value.
func (m Metadata) IsEmpty() bool {
	return m.Coords == nil && m.DateTime == "" && m.Make == "" && m.Model == "" && len(m.Extra) == 0
}

// Lat returns the latitude, or nil when there is no fix.
func (m Metadata) Lat() *float64 {
	if m.Coords == nil {
		return nil
	}
	v := m.Coords.Lat
	return &v
}

// Lon returns the longitude, or nil when there is no fix.
func (m Metadata) Lon() *float64 {
	if m.Coords == nil {
		return nil
	}
	v := m.Coords.Lon
	return &v
}

// Record is the resolved metadata of one photo. Path is unique within a run.
type Record struct {
	Path string `json:"path"`
	Metadata
}

// HasGPS reports whether the record can be placed on the map.
func (r Record) HasGPS() bool {
	return r.Coords != nil
}

func (r Record) String() string {
	if r.Coords == nil {
		return fmt.Sprintf("%s (no gps) dt=%q make=%q model=%q", r.Path, r.DateTime, r.Make, r.Model)
	}
	return fmt.Sprintf("%s (%.6f,%.6f) dt=%q make=%q model=%q", r.Path, r.Coords.Lat, r.Coords.Lon, r.DateTime, r.Make, r.Model)
}

// Status classifies a strategy result.
type Status int

const (
	NotApplicable Status = iota
	Found
	Failed
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "not-applicable"
	}
}

// Outcome is the tagged result of one extraction strategy. Meta is meaningful only when Status is Found;
// Err only when Status is Failed.
type Outcome struct {
	Status Status
	Meta   Metadata
	Err    error
}

// FoundMeta returns a Found outcome.
func FoundMeta(m Metadata) Outcome {
	return Outcome{Status: Found, Meta: m}
}

// Skip returns a NotApplicable outcome.
func Skip() Outcome {
	return Outcome{Status: NotApplicable}
}

// Fail returns a Failed outcome carrying err.
func Fail(err error) Outcome {
	return Outcome{Status: Failed, Err: err}
}

// Metadata returns the found metadata, or the zero value for any other status.
func (o Outcome) Metadata() Metadata {
	if o.Status != Found {
		return Metadata{}
	}
	return o.Meta
}
