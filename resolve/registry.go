package resolve

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/evanoberholster/imagemeta"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photoMap/geo"
	"photoMap/photo"
)

// ErrNoDecoder is returned when no registered capability recognises a file.
var ErrNoDecoder = errors.New("resolve: no decoder for image format")

// Capability is one image format family the full decoder can open.
type Capability interface {
	Name() string
	// Sniff reports whether the leading bytes of a file belong to this format.
	Sniff(header []byte) bool
	Decode(r io.ReadSeeker) (photo.Metadata, error)
}

// Registry holds the capabilities registered at startup, consulted in order.
type Registry struct {
	caps []Capability
}

// NewRegistry returns a registry of caps. It is never mutated afterwards.
func NewRegistry(caps ...Capability) *Registry {
	return &Registry{caps: append([]Capability(nil), caps...)}
}

// Lookup returns the first capability recognising header.
func (r *Registry) Lookup(header []byte) (Capability, error) {
	for _, c := range r.caps {
		if c.Sniff(header) {
			return c, nil
		}
	}
	return nil, ErrNoDecoder
}

// Names lists the registered capabilities.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for _, c := range r.caps {
		names = append(names, c.Name())
	}
	return names
}

type standardDecoder struct{}

// StandardDecoder decodes JPEG, PNG, GIF, WebP, TIFF and BMP pixels and then reads the EXIF
// dictionary from the same bytes.
func StandardDecoder() Capability {
	return standardDecoder{}
}

var standardMagic = [][]byte{
	{0xff, 0xd8, 0xff},
	[]byte("\x89PNG\r\n\x1a\n"),
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("II*\x00"),
	[]byte("MM\x00*"),
	[]byte("BM"),
}

func (standardDecoder) Name() string { return "standard" }

func (standardDecoder) Sniff(header []byte) bool {
	for _, m := range standardMagic {
		if bytes.HasPrefix(header, m) {
			return true
		}
	}
	return len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WEBP"
}

func (standardDecoder) Decode(r io.ReadSeeker) (photo.Metadata, error) {
	if _, _, err := image.Decode(r); err != nil {
		return photo.Metadata{}, fmt.Errorf("decode pixels: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return photo.Metadata{}, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return photo.Metadata{}, err
	}
	return dictionaryMetadata(raw), nil
}

type heifDecoder struct{}

// HEIFDecoder opens HEIC/HEIF containers and reads their embedded EXIF.
func HEIFDecoder() Capability {
	return heifDecoder{}
}

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "mif1": true, "msf1": true,
}

func (heifDecoder) Name() string { return "heif" }

func (heifDecoder) Sniff(header []byte) bool {
	return len(header) >= 12 && string(header[4:8]) == "ftyp" && heifBrands[string(header[8:12])]
}

func (heifDecoder) Decode(r io.ReadSeeker) (photo.Metadata, error) {
	x, err := imagemeta.Decode(r)
	if errors.Is(err, imagemeta.ErrNoExif) {
		return photo.Metadata{}, nil
	}
	if err != nil {
		return photo.Metadata{}, fmt.Errorf("decode heif: %w", err)
	}
	var out photo.Metadata
	out.Make = cleanASCII(x.Make)
	out.Model = cleanASCII(x.Model)
	// Only the parsed time is exposed, so sub-seconds and the offset are not carried.
	if t := x.DateTimeOriginal(); !t.IsZero() {
		out.DateTime = t.Format(exifTimeLayout)
	}
	if lat, lon := x.GPS.Latitude(), x.GPS.Longitude(); lat != 0 || lon != 0 {
		out.Coords = geo.NewPoint(lat, lon)
	}
	return out, nil
}

const exifTimeLayout = "2006:01:02 15:04:05"
