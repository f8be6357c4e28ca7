package resolve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"photoMap/geo"
	"photoMap/photo"
)

var registerMakerNotes sync.Once

// HeaderParser reads EXIF straight from the file header without decoding pixels.
type HeaderParser struct{}

// HeaderOption configures a HeaderParser.
type HeaderOption func(*HeaderParser)

// WithMakerNotes registers the vendor maker-note parsers so some vendor fields decode correctly.
// Registration is process wide and happens once.
func WithMakerNotes() HeaderOption {
	return func(*HeaderParser) {
		registerMakerNotes.Do(func() {
			exif.RegisterParsers(mknote.All...)
		})
	}
}

// NewHeaderParser returns a parser with opts applied.
func NewHeaderParser(opts ...HeaderOption) *HeaderParser {
	h := &HeaderParser{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Extract implements Extractor.
func (h *HeaderParser) Extract(path string) photo.Outcome {
	f, err := os.Open(path)
	if err != nil {
		return photo.Fail(err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	soi, _ := br.Peek(2)
	isJPEG := len(soi) == 2 && soi[0] == 0xff && soi[1] == 0xd8

	x, err := exif.Decode(br)
	if err != nil && x != nil && !exif.IsCriticalError(err) {
		// A broken sub-IFD leaves the tags of the others readable.
		return photo.FoundMeta(headerMetadata(x))
	}
	if err != nil {
		// A JPEG scanned to the end without an APP1 segment simply has no EXIF.
		if isJPEG && errors.Is(err, io.EOF) {
			return photo.FoundMeta(photo.Metadata{})
		}
		return photo.Fail(fmt.Errorf("exif header: %w", err))
	}
	return photo.FoundMeta(headerMetadata(x))
}

func headerMetadata(x *exif.Exif) photo.Metadata {
	var out photo.Metadata

	if s := tagString(x, exif.DateTimeOriginal); s != "" {
		out.DateTime = s
	} else {
		out.DateTime = tagString(x, exif.DateTime)
	}
	out.Make = tagString(x, exif.Make)
	out.Model = tagString(x, exif.Model)

	lat, latOK := tagDegrees(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	lon, lonOK := tagDegrees(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if latOK && lonOK {
		out.Coords = geo.NewPoint(lat, lon)
	}
	return out
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return cleanASCII(s)
}

// tagDegrees renders the three components of a GPS coordinate as ratio strings and converts them.
func tagDegrees(x *exif.Exif, name, refName exif.FieldName) (float64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	var parts []string
	switch tag.Format() {
	case tiff.RatVal:
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return 0, false
			}
			parts = append(parts, strconv.FormatInt(num, 10)+"/"+strconv.FormatInt(den, 10))
		}
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return 0, false
		}
		if parts, err = geo.SplitRatios(cleanASCII(s)); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return geo.RatiosToDecimal(parts, tagString(x, refName))
}

func cleanASCII(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}
