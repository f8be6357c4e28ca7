// Package resolve turns a photo path into a photo.Record by reconciling the EXIF header, a sidecar
// JSON file and, as a last resort, a full image decode.
package resolve

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"photoMap/geo"
	"photoMap/photo"
)

// Extractor is one metadata strategy. Implementations report problems through the Outcome.
type Extractor interface {
	Extract(path string) photo.Outcome
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(path string) photo.Outcome

// Extract calls f(path).
func (f ExtractorFunc) Extract(path string) photo.Outcome {
	return f(path)
}

// Resolver runs the strategies for one photo at a time. It is safe for concurrent use as long as
// its extractors are.
type Resolver struct {
	Header  Extractor
	Sidecar Extractor
	Decoder Extractor
	Log     logrus.FieldLogger
}

// NewResolver wires the standard strategies with the given decoder registry.
func NewResolver(reg *Registry, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		Header:  NewHeaderParser(WithMakerNotes()),
		Sidecar: NewSidecarReader(),
		Decoder: NewDecoder(reg),
		Log:     log,
	}
}

// DefaultRegistry registers every built-in decoder capability.
func DefaultRegistry() *Registry {
	return NewRegistry(StandardDecoder(), HEIFDecoder())
}

// Resolve never fails: every strategy problem degrades to missing fields.
func (r *Resolver) Resolve(path string) photo.Record {
	head := r.run("header", r.Header, path)
	meta := head.Metadata()

	side := r.run("sidecar", r.Sidecar, path)

	var dec photo.Outcome
	if meta.Coords == nil && side.Metadata().Coords == nil && head.Status == photo.Failed {
		dec = r.run("decoder", r.Decoder, path)
	}

	merged := Merge(meta, side.Metadata(), dec.Metadata())
	merged.Coords = geo.DropSentinel(merged.Coords)
	return photo.Record{Path: path, Metadata: merged}
}

// run calls e and contains any panic as a Failed outcome.
func (r *Resolver) run(name string, e Extractor, path string) (out photo.Outcome) {
	if e == nil {
		return photo.Skip()
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = photo.Fail(fmt.Errorf("%s panicked: %v", name, rec))
		}
		if out.Status == photo.Failed && r.Log != nil {
			r.Log.WithFields(logrus.Fields{"path": path, "strategy": name}).Debugf("extraction failed: %v", out.Err)
		}
	}()
	return e.Extract(path)
}
