// Package dashboard serves the cleaned listing snapshot to the map and table
// front end: range and city filters, numbered rows and GeoJSON markers.
package dashboard

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
)

// DefaultCityCount is how many cities are preselected when none are chosen.
const DefaultCityCount = 5

// Filter narrows the snapshot. Nil bounds are open; ranges are inclusive.
// An empty city set matches every listing.
type Filter struct {
	PriceMin   *float64
	PriceMax   *float64
	SurfaceMin *float64
	SurfaceMax *float64
	Cities     []string
}

// Match reports whether l passes every bound of f.
func (f Filter) Match(l model.Listing) bool {
	if !within(l.PriceEUR, f.PriceMin, f.PriceMax) || !within(l.SurfaceM2, f.SurfaceMin, f.SurfaceMax) {
		return false
	}
	if len(f.Cities) == 0 {
		return true
	}
	for _, c := range f.Cities {
		if c == l.City {
			return true
		}
	}
	return false
}

func within(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

// Apply returns the listings matching f, in input order.
func Apply(listings []model.Listing, f Filter) []model.Listing {
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// ParseFilter reads price_min, price_max, surface_min, surface_max and
// repeated city parameters.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	for name, dst := range map[string]**float64{
		"price_min":   &f.PriceMin,
		"price_max":   &f.PriceMax,
		"surface_min": &f.SurfaceMin,
		"surface_max": &f.SurfaceMax,
	} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Filter{}, eris.Errorf("dashboard: invalid %s %q", name, raw)
		}
		*dst = &v
	}
	for _, c := range q["city"] {
		if c = strings.TrimSpace(c); c != "" {
			f.Cities = append(f.Cities, c)
		}
	}
	return f, nil
}

// Range is an inclusive numeric extent.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Extents are the slider bounds of a snapshot. A nil range means the
// snapshot is empty.
type Extents struct {
	Price   *Range `json:"price"`
	Surface *Range `json:"surface"`
}

// Bounds returns the price and surface extents of listings.
func Bounds(listings []model.Listing) Extents {
	if len(listings) == 0 {
		return Extents{}
	}
	p := Range{Min: listings[0].PriceEUR, Max: listings[0].PriceEUR}
	s := Range{Min: listings[0].SurfaceM2, Max: listings[0].SurfaceM2}
	for _, l := range listings[1:] {
		p.Min, p.Max = math.Min(p.Min, l.PriceEUR), math.Max(p.Max, l.PriceEUR)
		s.Min, s.Max = math.Min(s.Min, l.SurfaceM2), math.Max(s.Max, l.SurfaceM2)
	}
	return Extents{Price: &p, Surface: &s}
}

// Cities returns the sorted distinct non-empty city names.
func Cities(listings []model.Listing) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range listings {
		if l.City == "" {
			continue
		}
		if _, ok := seen[l.City]; ok {
			continue
		}
		seen[l.City] = struct{}{}
		out = append(out, l.City)
	}
	sort.Strings(out)
	return out
}

// DefaultCities is the initial city selection: the first DefaultCityCount
// of the sorted list.
func DefaultCities(cities []string) []string {
	if len(cities) > DefaultCityCount {
		cities = cities[:DefaultCityCount]
	}
	return append([]string{}, cities...)
}

// Row is one numbered table line.
type Row struct {
	N int `json:"n"`
	model.Listing
}

// MarshalJSON inlines the listing columns next to the row number.
func (r Row) MarshalJSON() ([]byte, error) {
	data, err := r.Listing.MarshalJSON()
	if err != nil {
		return nil, err
	}
	prefix := `{"n":` + strconv.Itoa(r.N)
	if len(data) <= 2 {
		return []byte(prefix + "}"), nil
	}
	return append([]byte(prefix+","), data[1:]...), nil
}

// Table numbers listings from 1.
func Table(listings []model.Listing) []Row {
	rows := make([]Row, len(listings))
	for i, l := range listings {
		rows[i] = Row{N: i + 1, Listing: l}
	}
	return rows
}

// View is the initial map camera: the mean of the mapped points.
type View struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      int     `json:"zoom"`
}

// DefaultZoom is the initial map zoom level.
const DefaultZoom = 10

// RegionView centres the map on the middle of r's bounding box.
func RegionView(r geo.Region) View {
	return View{
		Latitude:  (r.MinLat + r.MaxLat) / 2,
		Longitude: (r.MinLon + r.MaxLon) / 2,
		Zoom:      DefaultZoom,
	}
}

// Center returns the view over the in-region listings, or false when none
// has coordinates.
func Center(listings []model.Listing, r geo.Region) (View, bool) {
	mapped := geo.InRegion(listings, r)
	if len(mapped) == 0 {
		return View{}, false
	}
	var lat, lon float64
	for _, l := range mapped {
		lat += l.Coordinates.Latitude
		lon += l.Coordinates.Longitude
	}
	n := float64(len(mapped))
	return View{Latitude: lat / n, Longitude: lon / n, Zoom: DefaultZoom}, true
}
