// Package exiftest builds small JPEG files carrying a hand-assembled EXIF block, for tests that need
// real camera-style metadata without checking binary fixtures into the tree.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// Rat is an unsigned EXIF rational.
type Rat struct {
	Num, Den uint32
}

// GPS describes the GPS IFD. Lat/Lon may be nil to omit the tag, which is how tests express a
// half-written fix.
type GPS struct {
	LatRef   string
	Lat      []Rat
	LonRef   string
	Lon      []Rat
	Altitude *Rat
}

// Fields lists the tags written into the fixture. Empty strings are omitted.
type Fields struct {
	Make             string
	Model            string
	DateTime         string
	DateTimeOriginal string
	GPS              *GPS
	// InteropPointer, when set, adds an IFD0 Interoperability pointer with this raw offset,
	// which lets a test point it past the end of the data.
	InteropPointer uint32
}

// DMS is a convenience for whole degrees, minutes and seconds.
func DMS(d, m, s uint32) []Rat {
	return []Rat{{d, 1}, {m, 1}, {s, 1}}
}

const (
	typeByte     = 1
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var order = binary.BigEndian

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func rationals(tag uint16, rs []Rat) entry {
	b := make([]byte, 8*len(rs))
	for i, r := range rs {
		order.PutUint32(b[8*i:], r.Num)
		order.PutUint32(b[8*i+4:], r.Den)
	}
	return entry{tag: tag, typ: typeRational, count: uint32(len(rs)), data: b}
}

func long(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, data: b}
}

func ifdSize(entries []entry) uint32 {
	n := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			n += uint32(len(e.data) + len(e.data)%2)
		}
	}
	return n
}

// writeIFD serialises entries as an IFD located at offset base, followed by its out-of-line values.
func writeIFD(entries []entry, base uint32) []byte {
	var head, data bytes.Buffer
	dataOff := base + uint32(2+12*len(entries)+4)

	_ = binary.Write(&head, order, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&head, order, e.tag)
		_ = binary.Write(&head, order, e.typ)
		_ = binary.Write(&head, order, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head.Write(v)
			continue
		}
		_ = binary.Write(&head, order, dataOff+uint32(data.Len()))
		data.Write(e.data)
		if len(e.data)%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&head, order, uint32(0))
	head.Write(data.Bytes())
	return head.Bytes()
}

// TIFF returns the big-endian TIFF structure holding f.
func TIFF(f Fields) []byte {
	var ifd0, exifIFD, gpsIFD []entry
	if f.Make != "" {
		ifd0 = append(ifd0, ascii(0x010f, f.Make))
	}
	if f.Model != "" {
		ifd0 = append(ifd0, ascii(0x0110, f.Model))
	}
	if f.DateTime != "" {
		ifd0 = append(ifd0, ascii(0x0132, f.DateTime))
	}
	if f.DateTimeOriginal != "" {
		exifIFD = append(exifIFD, ascii(0x9003, f.DateTimeOriginal))
	}
	if g := f.GPS; g != nil {
		gpsIFD = append(gpsIFD, entry{tag: 0x0000, typ: typeByte, count: 4, data: []byte{2, 2, 0, 0}})
		if g.LatRef != "" {
			gpsIFD = append(gpsIFD, ascii(0x0001, g.LatRef))
		}
		if g.Lat != nil {
			gpsIFD = append(gpsIFD, rationals(0x0002, g.Lat))
		}
		if g.LonRef != "" {
			gpsIFD = append(gpsIFD, ascii(0x0003, g.LonRef))
		}
		if g.Lon != nil {
			gpsIFD = append(gpsIFD, rationals(0x0004, g.Lon))
		}
		if g.Altitude != nil {
			gpsIFD = append(gpsIFD, entry{tag: 0x0005, typ: typeByte, count: 1, data: []byte{0}})
			gpsIFD = append(gpsIFD, rationals(0x0006, []Rat{*g.Altitude}))
		}
	}

	// Pointer entries are fixed size, so offsets can be computed before they are known.
	if len(exifIFD) > 0 {
		ifd0 = append(ifd0, long(0x8769, 0))
	}
	if len(gpsIFD) > 0 {
		ifd0 = append(ifd0, long(0x8825, 0))
	}
	if f.InteropPointer != 0 {
		ifd0 = append(ifd0, long(0xa005, f.InteropPointer))
	}
	ifd0Off := uint32(8)
	exifOff := ifd0Off + ifdSize(ifd0)
	gpsOff := exifOff + ifdSize(exifIFD)
	if len(exifIFD) == 0 {
		gpsOff = exifOff
	}
	for i := range ifd0 {
		switch ifd0[i].tag {
		case 0x8769:
			order.PutUint32(ifd0[i].data, exifOff)
		case 0x8825:
			order.PutUint32(ifd0[i].data, gpsOff)
		}
	}

	var out bytes.Buffer
	out.WriteString("MM")
	_ = binary.Write(&out, order, uint16(42))
	_ = binary.Write(&out, order, ifd0Off)
	out.Write(writeIFD(ifd0, ifd0Off))
	if len(exifIFD) > 0 {
		out.Write(writeIFD(exifIFD, exifOff))
	}
	if len(gpsIFD) > 0 {
		out.Write(writeIFD(gpsIFD, gpsOff))
	}
	return out.Bytes()
}

// heifBox is an ISO BMFF ftyp box with the heic major brand.
var heifBox = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")

// HEIF returns an ftyp box followed by the TIFF structure holding f, which is as much of a
// HEIC container as header-scanning readers look at. A nil f yields the box and zero padding.
func HEIF(f *Fields) []byte {
	out := append([]byte(nil), heifBox...)
	if f == nil {
		return append(out, make([]byte, 64)...)
	}
	return append(out, TIFF(*f)...)
}

// PlainJPEG returns a small valid JPEG without any APP1 segment.
func PlainJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a valid JPEG whose APP1 segment carries f.
func JPEG(f Fields) []byte {
	plain := PlainJPEG()
	tiff := TIFF(f)

	var out bytes.Buffer
	out.Write(plain[:2]) // SOI
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(2+6+len(tiff)))
	out.WriteString("Exif\x00\x00")
	out.Write(tiff)
	out.Write(plain[2:])
	return out.Bytes()
}

// Corrupt returns bytes that no decoder recognises.
func Corrupt() []byte {
	return []byte("this is definitely not an image file\n")
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
