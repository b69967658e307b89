package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/geocode"
	"github.com/sells-group/listings-cli/pkg/geocode/mocks"
)

var (
	centroid75015 = geocode.Centroid{Latitude: 48.8412, Longitude: 2.2928, Places: 1}
	centroid06000 = geocode.Centroid{Latitude: 43.7031, Longitude: 7.2661, Places: 1}
)

func listing(url, zip string) model.Listing {
	return model.Listing{Title: "Appartement " + zip, PriceEUR: 350000, SurfaceM2: 45.5, ZipCode: zip, URL: url}
}

func TestMissingPostalCodes(t *testing.T) {
	in := []model.Listing{
		listing("a", "75015"),
		listing("b", "06000"),
		listing("c", "75015"),
		listing("d", ""),
		{ZipCode: "75001", Coordinates: &model.Coordinates{Latitude: 48.86, Longitude: 2.34}},
	}
	assert.Equal(t, []string{"06000", "75015"}, MissingPostalCodes(in))
}

func TestResolve_FillsInRegionCentroid(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).
		Return(map[string]geocode.Centroid{"75015": centroid75015}, nil).Once()

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), []model.Listing{listing("https://x/1", "75015")})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].Coordinates)
	assert.Equal(t, centroid75015.Latitude, out[0].Coordinates.Latitude, "a lone centroid is not jittered")
	assert.Equal(t, centroid75015.Longitude, out[0].Coordinates.Longitude)
	assert.True(t, out[0].FromPostalCode)
	assert.Equal(t, 1, stats.Geocoded)
	assert.Equal(t, 0, stats.Jittered)
}

func TestResolve_OutOfRegionCentroidDiscarded(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"06000"}).
		Return(map[string]geocode.Centroid{"06000": centroid06000}, nil)

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), []model.Listing{listing("https://x/nice", "06000")})

	require.Len(t, out, 1)
	assert.Equal(t, "06000", out[0].ZipCode)
	assert.Nil(t, out[0].Coordinates)
	assert.False(t, out[0].FromPostalCode)
	assert.Equal(t, 1, stats.OutOfRegion)
}

func TestResolve_SharedCodeIsJitteredApart(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).
		Return(map[string]geocode.Centroid{"75015": centroid75015}, nil).Once()

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	in := []model.Listing{listing("https://x/1", "75015"), listing("https://x/2", "75015")}
	out, stats := r.Resolve(context.Background(), in)

	require.Len(t, out, 2)
	a, b := out[0].Coordinates, out[1].Coordinates
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, *a, *b)
	for _, c := range []*model.Coordinates{a, b} {
		assert.False(t, c.Latitude == centroid75015.Latitude && c.Longitude == centroid75015.Longitude)
		d := displacementMeters(centroid75015.Latitude, centroid75015.Longitude, c.Latitude, c.Longitude)
		assert.GreaterOrEqual(t, d, 0.3*DefaultMaxOffsetMeters-1e-6)
		assert.LessOrEqual(t, d, DefaultMaxOffsetMeters+1e-6)
		assert.True(t, IleDeFrance.Contains(c.Latitude, c.Longitude))
	}
	assert.Equal(t, 2, stats.Jittered)

	// Input is left untouched.
	assert.Nil(t, in[0].Coordinates)
	assert.Nil(t, in[1].Coordinates)
}

func TestResolve_Stable(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).
		Return(map[string]geocode.Centroid{"75015": centroid75015}, nil).Twice()

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	in := []model.Listing{listing("https://x/1", "75015"), listing("https://x/2", "75015")}
	first, _ := r.Resolve(context.Background(), in)
	second, _ := r.Resolve(context.Background(), in)
	assert.Equal(t, first, second)
}

func TestResolve_SourceCoordinatesNeverJittered(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).
		Return(map[string]geocode.Centroid{"75015": centroid75015}, nil)

	src := &model.Coordinates{Latitude: 48.8401, Longitude: 2.2990}
	in := []model.Listing{
		{Title: "source", PriceEUR: 1, SurfaceM2: 1, ZipCode: "75015", Coordinates: src},
		listing("https://x/1", "75015"),
	}

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), in)

	assert.Equal(t, *src, *out[0].Coordinates)
	assert.False(t, out[0].FromPostalCode)
	assert.Equal(t, centroid75015.Latitude, out[1].Coordinates.Latitude, "only one geocoded listing on the code")
	assert.Equal(t, 0, stats.Jittered)
}

func TestResolve_LookupFailureIsNotFatal(t *testing.T) {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).Return(nil, assert.AnError)

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), []model.Listing{listing("https://x/1", "75015")})

	require.Len(t, out, 1)
	assert.Nil(t, out[0].Coordinates)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 0, stats.Geocoded)
}

func TestResolve_NoLookupWithoutMissingCodes(t *testing.T) {
	lookup := mocks.NewMockClient(t)

	r := NewResolver(lookup, IleDeFrance, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), []model.Listing{
		{Title: "no zip", PriceEUR: 1, SurfaceM2: 1},
		{Title: "has coords", PriceEUR: 1, SurfaceM2: 1, ZipCode: "75015",
			Coordinates: &model.Coordinates{Latitude: 48.84, Longitude: 2.29}},
	})

	assert.Len(t, out, 2)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 0, stats.Codes)
	lookup.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_ClearsPairsPushedOutByJitter(t *testing.T) {
	// A zero-area region admits the centroid but no displaced point.
	pin := Region{Name: "pin", MinLat: 48.8412, MaxLat: 48.8412, MinLon: 2.2928, MaxLon: 2.2928}

	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).
		Return(map[string]geocode.Centroid{"75015": centroid75015}, nil)

	r := NewResolver(lookup, pin, "FR", JitterConfig{})
	out, stats := r.Resolve(context.Background(), []model.Listing{
		listing("https://x/1", "75015"),
		listing("https://x/2", "75015"),
	})

	assert.Equal(t, 2, stats.Geocoded)
	assert.Equal(t, 2, stats.ClearedAfterSpread)
	assert.Nil(t, out[0].Coordinates)
	assert.Nil(t, out[1].Coordinates)
}

func TestSpread_UsesIndexKeyWithoutURLOrTitle(t *testing.T) {
	c := &model.Coordinates{Latitude: 48.85, Longitude: 2.35}
	in := []model.Listing{
		{ZipCode: "75004", Coordinates: c, FromPostalCode: true},
		{ZipCode: "75004", Coordinates: c, FromPostalCode: true},
	}
	out, n := Spread(in, JitterConfig{})
	assert.Equal(t, 2, n)

	lat0, lon0 := Jitter("0", c.Latitude, c.Longitude, JitterConfig{})
	assert.Equal(t, lat0, out[0].Coordinates.Latitude)
	assert.Equal(t, lon0, out[0].Coordinates.Longitude)
	assert.NotEqual(t, *out[0].Coordinates, *out[1].Coordinates)
}
