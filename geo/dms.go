package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rational is an EXIF RATIONAL value (numerator over denominator).
type Rational struct {
	Num int64
	Den int64
}

// Float returns num/den. A zero denominator is an error rather than an infinity.
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, fmt.Errorf("rational %d/0: zero denominator", r.Num)
	}
	return float64(r.Num) / float64(r.Den), nil
}

func (r Rational) String() string {
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}

var errComponents = errors.New("geo: degrees, minutes and seconds expected")

// RatiosToDecimal converts three ratio strings ("num/den" or a plain float) plus a
// hemisphere reference into decimal degrees. ok is false on any parse failure.
func RatiosToDecimal(parts []string, ref string) (deg float64, ok bool) {
	if len(parts) != 3 {
		return 0, false
	}
	var v [3]float64
	for i, p := range parts {
		f, err := ParseRatio(p)
		if err != nil {
			return 0, false
		}
		v[i] = f
	}
	return toDecimal(v, ref), true
}

// DMSToDecimal is RatiosToDecimal for already-decoded rationals.
func DMSToDecimal(parts []Rational, ref string) (deg float64, ok bool) {
	if len(parts) != 3 {
		return 0, false
	}
	var v [3]float64
	for i, p := range parts {
		f, err := p.Float()
		if err != nil {
			return 0, false
		}
		v[i] = f
	}
	return toDecimal(v, ref), true
}

// ParseRatio parses "num/den" by dividing, or a plain float when there is no slash.
func ParseRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if num, den, found := strings.Cut(s, "/"); found {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("ratio %q: zero denominator", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

// SplitRatios splits an ASCII-encoded DMS value such as "51/1, 30/1, 26/1" or
// "51 30 26.5" into its components.
func SplitRatios(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '\t'
	})
	if len(fields) != 3 {
		return nil, errComponents
	}
	return fields, nil
}

func toDecimal(v [3]float64, ref string) float64 {
	deg := v[0] + v[1]/60 + v[2]/3600
	ref = strings.ToUpper(strings.Trim(ref, "\x00 "))
	if ref == "S" || ref == "W" {
		deg = -deg
	}
	return deg
}
