package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FlexNumber holds a numeric field as scraped. Portals emit numbers, formatted
// strings ("350 000€", "45,5") or null for the same field, so the raw text is
// kept and parsed later by the normalizer.
type FlexNumber struct {
	Raw   string
	Valid bool
}

// Number returns a FlexNumber for a plain float.
func Number(v float64) FlexNumber {
	return FlexNumber{Raw: strconv.FormatFloat(v, 'f', -1, 64), Valid: true}
}

// Text returns a FlexNumber for a formatted string.
func Text(s string) FlexNumber {
	return FlexNumber{Raw: s, Valid: strings.TrimSpace(s) != ""}
}

// UnmarshalJSON accepts numbers, strings and null. Objects, arrays and
// booleans decode as absent rather than failing the whole document.
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = FlexNumber{}
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode number string")
		}
		*n = Text(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*n = FlexNumber{Raw: string(data), Valid: true}
	}
	return nil
}

// MarshalJSON writes the raw value back as a string, or null when absent.
func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Raw)
}

// FlexString holds a text field that may arrive as a string, a number or null.
// Postal codes written by spreadsheet tools often come back as 75015 or 75015.0.
type FlexString string

// UnmarshalJSON accepts strings, numbers and null.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return eris.Wrap(err, "model: decode string")
		}
		*s = FlexString(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*s = FlexString(data)
	}
	return nil
}

// RawListing is one record as produced by the scraper.
type RawListing struct {
	Title     FlexString `json:"title"`
	Price     FlexNumber `json:"price"`
	Surface   FlexNumber `json:"surface_m2"`
	Rooms     FlexNumber `json:"rooms"`
	City      FlexString `json:"city"`
	ZipCode   FlexString `json:"zipcode"`
	Latitude  FlexNumber `json:"latitude"`
	Longitude FlexNumber `json:"longitude"`
	URL       FlexString `json:"url"`
}

// Coordinates is a latitude/longitude pair. Listings hold a pointer so a
// position is either fully present or absent.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Listing is a cleaned, display-ready record.
type Listing struct {
	Title       string
	PriceEUR    float64
	SurfaceM2   float64
	PricePerM2  float64
	Rooms       *float64
	City        string
	ZipCode     string
	Coordinates *Coordinates
	URL         string

	// FromPostalCode is set when Coordinates came from a postal-code centroid
	// rather than the scraped record. It is not persisted.
	FromPostalCode bool
}

// HasCoordinates reports whether the listing carries a position.
func (l Listing) HasCoordinates() bool {
	return l.Coordinates != nil
}

type listingJSON struct {
	Title      string   `json:"title"`
	PriceEUR   float64  `json:"price_eur"`
	SurfaceM2  float64  `json:"surface_m2"`
	PricePerM2 float64  `json:"price_per_m2"`
	Rooms      *float64 `json:"rooms"`
	City       string   `json:"city"`
	ZipCode    string   `json:"zipcode"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	URL        string   `json:"url"`
}

// MarshalJSON flattens the coordinates into latitude/longitude columns.
func (l Listing) MarshalJSON() ([]byte, error) {
	out := listingJSON{
		Title:      l.Title,
		PriceEUR:   l.PriceEUR,
		SurfaceM2:  l.SurfaceM2,
		PricePerM2: l.PricePerM2,
		Rooms:      l.Rooms,
		City:       l.City,
		ZipCode:    l.ZipCode,
		URL:        l.URL,
	}
	if l.Coordinates != nil {
		lat, lon := l.Coordinates.Latitude, l.Coordinates.Longitude
		out.Latitude = &lat
		out.Longitude = &lon
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat snapshot layout. A row with only one of
// latitude/longitude set is read as having no coordinates.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var in listingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: decode listing")
	}
	*l = Listing{
		Title:      in.Title,
		PriceEUR:   in.PriceEUR,
		SurfaceM2:  in.SurfaceM2,
		PricePerM2: in.PricePerM2,
		Rooms:      in.Rooms,
		City:       in.City,
		ZipCode:    in.ZipCode,
		URL:        in.URL,
	}
	if in.Latitude != nil && in.Longitude != nil {
		l.Coordinates = &Coordinates{Latitude: *in.Latitude, Longitude: *in.Longitude}
	}
	return nil
}
