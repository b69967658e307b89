// Package export writes and reads the cleaned listing table as CSV, XLSX or
// JSON.
package export

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/model"
)

// Columns is the ordered output header.
var Columns = []string{
	"title",
	"price_eur",
	"surface_m2",
	"price_per_m2",
	"rooms",
	"city",
	"zipcode",
	"latitude",
	"longitude",
	"url",
}

// Row maps a listing to its output cells. Absent values are empty cells.
func Row(l model.Listing) []string {
	var lat, lon string
	if l.Coordinates != nil {
		lat = formatFloat(l.Coordinates.Latitude)
		lon = formatFloat(l.Coordinates.Longitude)
	}
	var rooms string
	if l.Rooms != nil {
		rooms = formatFloat(*l.Rooms)
	}
	return []string{
		l.Title,
		formatFloat(l.PriceEUR),
		formatFloat(l.SurfaceM2),
		formatFloat(l.PricePerM2),
		rooms,
		l.City,
		l.ZipCode,
		lat,
		lon,
		l.URL,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// header maps column names to their positions in a file's header row.
type header map[string]int

func newHeader(cols []string) (header, error) {
	h := make(header, len(cols))
	for i, c := range cols {
		h[strings.ToLower(strings.TrimSpace(c))] = i
	}
	for _, required := range []string{"price_eur", "surface_m2"} {
		if _, ok := h[required]; !ok {
			return nil, eris.Errorf("export: missing column %q", required)
		}
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) float(row []string, col string) (float64, bool, error) {
	s := h.get(row, col)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, eris.Wrapf(err, "export: column %s", col)
	}
	return v, true, nil
}

// parse maps one table row back to a listing.
func (h header) parse(row []string) (model.Listing, error) {
	l := model.Listing{
		Title:   h.get(row, "title"),
		City:    h.get(row, "city"),
		ZipCode: h.get(row, "zipcode"),
		URL:     h.get(row, "url"),
	}

	var err error
	if l.PriceEUR, _, err = h.float(row, "price_eur"); err != nil {
		return model.Listing{}, err
	}
	if l.SurfaceM2, _, err = h.float(row, "surface_m2"); err != nil {
		return model.Listing{}, err
	}
	if l.PricePerM2, _, err = h.float(row, "price_per_m2"); err != nil {
		return model.Listing{}, err
	}

	rooms, ok, err := h.float(row, "rooms")
	if err != nil {
		return model.Listing{}, err
	}
	if ok {
		l.Rooms = &rooms
	}

	lat, latOK, err := h.float(row, "latitude")
	if err != nil {
		return model.Listing{}, err
	}
	lon, lonOK, err := h.float(row, "longitude")
	if err != nil {
		return model.Listing{}, err
	}
	if latOK && lonOK {
		l.Coordinates = &model.Coordinates{Latitude: lat, Longitude: lon}
	}
	return l, nil
}
