package resolve

import (
	"fmt"
	"io"
	"os"
	"strconv"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"photoMap/geo"
	"photoMap/photo"
)

const gpsIfdPath = "IFD/GPSInfo"

// Decoder is the slow fallback: a full image decode through the registry, then the EXIF tags
// translated to names.
type Decoder struct {
	registry *Registry
}

// NewDecoder returns a Decoder consulting reg.
func NewDecoder(reg *Registry) *Decoder {
	return &Decoder{registry: reg}
}

// Extract implements Extractor.
func (d *Decoder) Extract(path string) photo.Outcome {
	f, err := os.Open(path)
	if err != nil {
		return photo.Fail(err)
	}
	defer f.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return photo.Fail(fmt.Errorf("read header: %w", err))
	}
	c, err := d.registry.Lookup(header[:n])
	if err != nil {
		return photo.Fail(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return photo.Fail(err)
	}
	meta, err := c.Decode(f)
	if err != nil {
		return photo.Fail(fmt.Errorf("%s: %w", c.Name(), err))
	}
	return photo.FoundMeta(meta)
}

// dictionary is the EXIF block keyed by tag name: the main IFDs and the GPS IFD apart.
type dictionary struct {
	main map[string]interface{}
	gps  map[string]interface{}
}

func newDictionary(tags []exif.ExifTag) dictionary {
	d := dictionary{main: map[string]interface{}{}, gps: map[string]interface{}{}}
	for _, t := range tags {
		target := d.main
		if t.IfdPath == gpsIfdPath {
			target = d.gps
		}
		// IFD0 is visited first; later IFDs (thumbnail, interop) do not override it.
		if _, ok := target[t.TagName]; !ok {
			target[t.TagName] = t.Value
		}
	}
	return d
}

// dictionaryMetadata locates the EXIF block in raw and maps it to Metadata. An image without a
// readable EXIF block yields empty metadata.
func dictionaryMetadata(raw []byte) photo.Metadata {
	rawExif, err := exif.SearchAndExtractExif(raw)
	if err != nil {
		return photo.Metadata{}
	}
	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return photo.Metadata{}
	}
	return newDictionary(tags).metadata()
}

func (d dictionary) metadata() photo.Metadata {
	var out photo.Metadata
	if s := valueString(d.main["DateTimeOriginal"]); s != "" {
		out.DateTime = s
	} else {
		out.DateTime = valueString(d.main["DateTime"])
	}
	out.Make = valueString(d.main["Make"])
	out.Model = valueString(d.main["Model"])

	lat, latOK := valueDegrees(d.gps["GPSLatitude"], valueString(d.gps["GPSLatitudeRef"]))
	lon, lonOK := valueDegrees(d.gps["GPSLongitude"], valueString(d.gps["GPSLongitudeRef"]))
	if latOK && lonOK {
		out.Coords = geo.NewPoint(lat, lon)
	}

	if alt, ok := valueAltitude(d.gps["GPSAltitude"]); ok {
		out.Extra = map[string]string{"altitude_m": alt}
	}
	return out
}

func valueString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return cleanASCII(s)
}

func valueDegrees(v interface{}, ref string) (float64, bool) {
	switch t := v.(type) {
	case []exifcommon.Rational:
		parts := make([]geo.Rational, len(t))
		for i, r := range t {
			parts[i] = geo.Rational{Num: int64(r.Numerator), Den: int64(r.Denominator)}
		}
		return geo.DMSToDecimal(parts, ref)
	case string:
		parts, err := geo.SplitRatios(cleanASCII(t))
		if err != nil {
			return 0, false
		}
		return geo.RatiosToDecimal(parts, ref)
	}
	return 0, false
}

func valueAltitude(v interface{}) (string, bool) {
	rs, ok := v.([]exifcommon.Rational)
	if !ok || len(rs) == 0 {
		return "", false
	}
	f, err := geo.Rational{Num: int64(rs[0].Numerator), Den: int64(rs[0].Denominator)}.Float()
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
