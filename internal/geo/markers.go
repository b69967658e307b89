package geo

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/listings-cli/internal/model"
)

// PriceLabel renders a price in thousands of euros, e.g. 350000 -> "350k€".
// Halves round to even.
func PriceLabel(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return ""
	}
	return strconv.FormatInt(int64(math.RoundToEven(price/1000)), 10) + "k€"
}

// InRegion returns the listings whose coordinates lie inside r.
func InRegion(listings []model.Listing, r Region) []model.Listing {
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if r.Validate(l.Coordinates) != nil {
			out = append(out, l)
		}
	}
	return out
}

// MarkerCollection builds one GeoJSON point feature per in-region listing.
func MarkerCollection(listings []model.Listing, r Region) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, l := range InRegion(listings, r) {
		pt := geom.NewPointFlat(geom.XY, []float64{l.Coordinates.Longitude, l.Coordinates.Latitude})
		props := map[string]any{
			"title":        l.Title,
			"price_eur":    l.PriceEUR,
			"surface_m2":   l.SurfaceM2,
			"price_per_m2": l.PricePerM2,
			"city":         l.City,
			"zipcode":      l.ZipCode,
			"url":          l.URL,
			"label":        PriceLabel(l.PriceEUR),
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   pt,
			Properties: props,
		})
	}
	return fc
}

// Markers encodes MarkerCollection as GeoJSON.
func Markers(listings []model.Listing, r Region) ([]byte, error) {
	data, err := json.Marshal(MarkerCollection(listings, r))
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode markers")
	}
	return data, nil
}
