package normalize

import (
	"fmt"
	"strings"

	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
)

// Rejection reasons.
const (
	ReasonMissingPrice   = "missing_price"
	ReasonInvalidPrice   = "invalid_price"
	ReasonMissingSurface = "missing_surface"
	ReasonInvalidSurface = "invalid_surface"
)

// RejectError reports why a raw record was dropped.
type RejectError struct {
	Reason string
	Value  string
}

func (e *RejectError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("normalize: %s", e.Reason)
	}
	return fmt.Sprintf("normalize: %s (%q)", e.Reason, e.Value)
}

func reject(reason string, v model.FlexNumber) *RejectError {
	return &RejectError{Reason: reason, Value: v.Raw}
}

// Record cleans one raw listing. Records without a positive price and
// surface are rejected. Scraped coordinates are kept only when both halves
// parse and fall inside region.
func Record(raw model.RawListing, region geo.Region) (model.Listing, error) {
	price, present, ok := positive(raw.Price)
	switch {
	case !present:
		return model.Listing{}, reject(ReasonMissingPrice, raw.Price)
	case !ok:
		return model.Listing{}, reject(ReasonInvalidPrice, raw.Price)
	}

	surface, present, ok := positive(raw.Surface)
	switch {
	case !present:
		return model.Listing{}, reject(ReasonMissingSurface, raw.Surface)
	case !ok:
		return model.Listing{}, reject(ReasonInvalidSurface, raw.Surface)
	}

	url := strings.TrimSpace(string(raw.URL))
	city := Text(string(raw.City))
	if city == "" {
		city = CityFromURL(url)
	}

	l := model.Listing{
		Title:      Text(string(raw.Title)),
		PriceEUR:   price,
		SurfaceM2:  surface,
		PricePerM2: PricePerM2(price, surface),
		Rooms:      Rooms(raw.Rooms),
		City:       city,
		ZipCode:    PostalCode(string(raw.ZipCode)),
		URL:        url,
	}

	lat, latOK := Coordinate(raw.Latitude)
	lon, lonOK := Coordinate(raw.Longitude)
	if latOK && lonOK {
		l.Coordinates = region.Validate(&model.Coordinates{Latitude: lat, Longitude: lon})
	}
	return l, nil
}
