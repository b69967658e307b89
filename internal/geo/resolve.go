package geo

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// Resolver fills missing coordinates from postal-code centroids and spreads
// listings that landed on the same centroid.
type Resolver struct {
	lookup  geocode.Client
	region  Region
	country string
	jitter  JitterConfig
}

// NewResolver creates a Resolver. country is the 2-letter code passed to the
// postal lookup.
func NewResolver(lookup geocode.Client, region Region, country string, jitter JitterConfig) *Resolver {
	return &Resolver{
		lookup:  lookup,
		region:  region,
		country: country,
		jitter:  jitter.withDefaults(),
	}
}

// FillStats counts what Fill did.
type FillStats struct {
	Missing     int // listings without coordinates before the lookup
	Codes       int // distinct postal codes queried
	Resolved    int // postal codes that returned a centroid
	Geocoded    int // listings that received a centroid
	OutOfRegion int // listings whose centroid fell outside the region
}

// ResolveStats counts what Resolve did.
type ResolveStats struct {
	FillStats
	Jittered           int
	ClearedAfterSpread int
}

// MissingPostalCodes returns the sorted distinct postal codes of listings
// that have no coordinates.
func MissingPostalCodes(listings []model.Listing) []string {
	seen := make(map[string]struct{})
	for _, l := range listings {
		if l.HasCoordinates() || l.ZipCode == "" {
			continue
		}
		seen[l.ZipCode] = struct{}{}
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Fill assigns in-region postal-code centroids to listings without
// coordinates. All distinct codes go out in a single lookup; a failed lookup
// leaves the batch unchanged.
func (r *Resolver) Fill(ctx context.Context, listings []model.Listing) ([]model.Listing, FillStats) {
	out := make([]model.Listing, len(listings))
	copy(out, listings)

	var stats FillStats
	for _, l := range out {
		if !l.HasCoordinates() {
			stats.Missing++
		}
	}

	codes := MissingPostalCodes(out)
	stats.Codes = len(codes)
	if len(codes) == 0 {
		return out, stats
	}

	centroids, err := r.lookup.Lookup(ctx, r.country, codes)
	if err != nil {
		zap.L().Warn("geo: postal code lookup failed, coordinates left absent",
			zap.String("country", r.country),
			zap.Int("codes", len(codes)),
			zap.Error(err),
		)
		return out, stats
	}
	stats.Resolved = len(centroids)

	for i := range out {
		l := &out[i]
		if l.HasCoordinates() || l.ZipCode == "" {
			continue
		}
		c, ok := centroids[l.ZipCode]
		if !ok {
			continue
		}
		if !r.region.Contains(c.Latitude, c.Longitude) {
			stats.OutOfRegion++
			continue
		}
		l.Coordinates = &model.Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
		l.FromPostalCode = true
		stats.Geocoded++
	}

	return out, stats
}

// Spread jitters listings whose coordinates came from a postal code shared by
// at least one other such listing. Source coordinates are never moved.
func (r *Resolver) Spread(listings []model.Listing) ([]model.Listing, int) {
	return Spread(listings, r.jitter)
}

// Spread is the resolver-independent form of Resolver.Spread.
func Spread(listings []model.Listing, cfg JitterConfig) ([]model.Listing, int) {
	out := make([]model.Listing, len(listings))
	copy(out, listings)

	perCode := make(map[string]int)
	for _, l := range out {
		if l.FromPostalCode && l.ZipCode != "" && l.HasCoordinates() {
			perCode[l.ZipCode]++
		}
	}

	jittered := 0
	for i := range out {
		l := &out[i]
		if !l.FromPostalCode || !l.HasCoordinates() || perCode[l.ZipCode] < 2 {
			continue
		}
		lat, lon := Jitter(JitterKey(*l, i), l.Coordinates.Latitude, l.Coordinates.Longitude, cfg)
		l.Coordinates = &model.Coordinates{Latitude: lat, Longitude: lon}
		jittered++
	}
	return out, jittered
}

// Resolve runs Fill, then Spread, then clears any pair the spread pushed
// outside the region.
func (r *Resolver) Resolve(ctx context.Context, listings []model.Listing) ([]model.Listing, ResolveStats) {
	filled, fill := r.Fill(ctx, listings)
	spread, jittered := r.Spread(filled)

	stats := ResolveStats{FillStats: fill, Jittered: jittered}
	for i := range spread {
		if spread[i].HasCoordinates() && r.region.Validate(spread[i].Coordinates) == nil {
			spread[i].Coordinates = nil
			stats.ClearedAfterSpread++
		}
	}

	zap.L().Debug("geo: resolve complete",
		zap.Int("missing", fill.Missing),
		zap.Int("codes", fill.Codes),
		zap.Int("geocoded", fill.Geocoded),
		zap.Int("out_of_region", fill.OutOfRegion),
		zap.Int("jittered", jittered),
		zap.Int("cleared_after_spread", stats.ClearedAfterSpread),
	)
	return spread, stats
}
