// Package normalize turns scraped listing fields into typed, validated values.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/listings-cli/internal/model"
)

var (
	plainNumber  = regexp.MustCompile(`^[-+]?\d+(\.\d+)?([eE][-+]?\d+)?$`)
	localeNumber = regexp.MustCompile(`^[-+]?[\d.,]*\d[\d.,]*$`)
	leadingDigit = regexp.MustCompile(`\d[\d.,]*`)

	// amountNoise is removed before parsing: grouping spaces, currency and
	// area units.
	amountNoise = strings.NewReplacer(
		" ", "", "\t", "", "\u00a0", "", "\u202f", "", "\u2009", "",
		"'", "", "\u2019", "",
		"euros", "", "euro", "", "eur", "", "€", "", "$", "",
		"m²", "", "m2", "",
	)
)

// ParseAmount parses a scraped number such as "350 000€", "45,5",
// "1.250.000,50" or "1,250,000.50". When both '.' and ',' appear the last one
// is the decimal separator. A lone ',' is a decimal comma; repeated ',' or
// '.' are thousands separators. Non-finite results are rejected.
func ParseAmount(s string) (float64, bool) {
	s = amountNoise.Replace(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return 0, false
	}

	if !plainNumber.MatchString(s) {
		if !localeNumber.MatchString(s) {
			return 0, false
		}
		s = canonicalSeparators(s)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func canonicalSeparators(s string) string {
	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// round2 rounds half away from zero to 2 decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// positive parses a required amount. It reports whether the field was
// present at all, and whether it parsed to a positive value once rounded to
// cents.
func positive(v model.FlexNumber) (val float64, present, ok bool) {
	if !v.Valid || strings.TrimSpace(v.Raw) == "" {
		return 0, false, false
	}
	f, parsed := ParseAmount(v.Raw)
	if !parsed {
		return 0, true, false
	}
	f = round2(f)
	if f <= 0 {
		return 0, true, false
	}
	return f, true, true
}

// Price returns the listing price in euros, rounded to cents.
func Price(v model.FlexNumber) (float64, bool) {
	f, _, ok := positive(v)
	return f, ok
}

// Surface returns the living area in m², rounded to 2 decimals.
func Surface(v model.FlexNumber) (float64, bool) {
	f, _, ok := positive(v)
	return f, ok
}

// PricePerM2 is price/surface rounded to 2 decimals.
func PricePerM2(price, surface float64) float64 {
	return round2(price / surface)
}

// Rooms parses a room count such as 3, "3", "3,5" or "3 pièces". Absent,
// unparseable or negative values yield nil.
func Rooms(v model.FlexNumber) *float64 {
	if !v.Valid {
		return nil
	}
	f, ok := ParseAmount(v.Raw)
	if !ok {
		m := leadingDigit.FindString(v.Raw)
		if m == "" {
			return nil
		}
		if f, ok = ParseAmount(m); !ok {
			return nil
		}
	}
	if f < 0 {
		return nil
	}
	return &f
}

// Coordinate parses one latitude or longitude value.
func Coordinate(v model.FlexNumber) (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	return ParseAmount(v.Raw)
}
