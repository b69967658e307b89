package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/export"
	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/geocode"
	"github.com/sells-group/listings-cli/pkg/geocode/mocks"
)

const rawFixture = `[
	{"title": "T2 Convention", "price": "350 000€", "surface_m2": "45,5", "zipcode": "75015", "latitude": null, "longitude": null, "url": "https://example.fr/annonces/achat/appartement/paris-75/1/"},
	{"title": "T3 Vaugirard", "price": 520000, "surface_m2": 61, "rooms": 3, "zipcode": "75015", "url": "https://example.fr/annonces/achat/appartement/paris-75/2/"},
	{"title": "T3 Vaugirard", "price": 520000, "surface_m2": 61, "rooms": 3, "zipcode": "75015", "url": "https://example.fr/annonces/achat/appartement/paris-75/2/"},
	{"title": "Nice", "price": 300000, "surface_m2": 40, "zipcode": "06000"},
	{"title": "Marais", "price": 900000, "surface_m2": 70, "latitude": 48.857, "longitude": 2.358, "zipcode": "75004"},
	{"title": "No price", "surface_m2": 20},
	"not a record",
	42
]`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw_data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
}

func TestLoadRaw(t *testing.T) {
	raws, err := LoadRaw(context.Background(), newFetcher(), writeFixture(t, rawFixture))
	require.NoError(t, err)
	require.Len(t, raws, 6)
	assert.Equal(t, model.FlexString("T2 Convention"), raws[0].Title)
	assert.Equal(t, "350 000€", raws[0].Price.Raw)
	assert.False(t, raws[0].Latitude.Valid)
}

func TestLoadRaw_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"title": "A", "price": 1, "surface_m2": 1}]`))
	}))
	defer srv.Close()

	raws, err := LoadRaw(context.Background(), newFetcher(), srv.URL+"/raw_data.json")
	require.NoError(t, err)
	require.Len(t, raws, 1)
}

func TestLoadRaw_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		source func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"empty file", func(t *testing.T) string { return writeFixture(t, "") }},
		{"truncated", func(t *testing.T) string { return writeFixture(t, `[{"title": "A"`) }},
		{"object not array", func(t *testing.T) string { return writeFixture(t, `{"title": "A"}`) }},
		{"empty source", func(*testing.T) string { return "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRaw(context.Background(), newFetcher(), tt.source(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInputUnavailable)
			var inErr *InputError
			assert.True(t, errors.As(err, &inErr))
		})
	}
}

func TestLoadRaw_EmptyArray(t *testing.T) {
	raws, err := LoadRaw(context.Background(), newFetcher(), writeFixture(t, "[]"))
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func newResolver(t *testing.T, centroids map[string]geocode.Centroid, err error) *geo.Resolver {
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"06000", "75015"}).
		Return(centroids, err).Once()
	return geo.NewResolver(lookup, geo.IleDeFrance, "FR", geo.JitterConfig{})
}

func TestPipeline_Run_FullFlow(t *testing.T) {
	ctx := context.Background()
	resolver := newResolver(t, map[string]geocode.Centroid{
		"75015": {Latitude: 48.8412, Longitude: 2.2921, Places: 1},
		"06000": {Latitude: 43.7, Longitude: 7.26, Places: 1},
	}, nil)

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.MatchedBy(func(r model.Run) bool {
		return r.Region == "ile-de-france" && r.Stats.Accepted == 4
	}), mock.Anything).Return(&model.Run{ID: "run-1"}, nil).Once()

	out := filepath.Join(t.TempDir(), "listings_clean.csv")
	p := New(newFetcher(), geo.IleDeFrance, WithResolver(resolver), WithStore(st))

	res, err := p.Run(ctx, writeFixture(t, rawFixture), out)
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, "run-1", res.Run.ID)

	require.Len(t, res.Listings, 4)
	first := res.Listings[0]
	assert.Equal(t, 350000.0, first.PriceEUR)
	assert.Equal(t, 45.5, first.SurfaceM2)
	assert.Equal(t, 7692.31, first.PricePerM2)
	assert.Equal(t, "Paris", first.City)

	// both 75015 listings were spread off the shared centroid
	a, b := res.Listings[0].Coordinates, res.Listings[1].Coordinates
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, *a, *b)
	assert.NotEqual(t, model.Coordinates{Latitude: 48.8412, Longitude: 2.2921}, *a)

	assert.Nil(t, res.Listings[2].Coordinates, "Nice centroid is outside the region")
	require.NotNil(t, res.Listings[3].Coordinates)
	assert.Equal(t, model.Coordinates{Latitude: 48.857, Longitude: 2.358}, *res.Listings[3].Coordinates)

	assert.Equal(t, model.RunStats{
		Raw:             6,
		Accepted:        4,
		Rejected:        map[string]int{"missing_price": 1},
		Duplicates:      1,
		Geocoded:        2,
		OutOfRegion:     1,
		Jittered:        2,
		WithCoordinates: 3,
	}, res.Stats)

	written, err := export.Read(ctx, out)
	require.NoError(t, err)
	require.Len(t, written, 4)
	assert.Equal(t, "T2 Convention", written[0].Title)

	st.AssertExpectations(t)
}

func TestPipeline_Run_LookupFailureIsNotFatal(t *testing.T) {
	resolver := newResolver(t, nil, errors.New("geocoder down"))
	p := New(newFetcher(), geo.IleDeFrance, WithResolver(resolver))

	res, err := p.Run(context.Background(), writeFixture(t, rawFixture), "")
	require.NoError(t, err)
	require.Len(t, res.Listings, 4)
	assert.Nil(t, res.Listings[0].Coordinates)
	assert.Nil(t, res.Listings[1].Coordinates)
	assert.Equal(t, 1, res.Stats.WithCoordinates)
	assert.Equal(t, 0, res.Stats.Jittered)
	assert.Nil(t, res.Run)
}

func TestPipeline_Run_WithoutResolver(t *testing.T) {
	p := New(newFetcher(), geo.IleDeFrance)

	res, err := p.Run(context.Background(), writeFixture(t, rawFixture), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.WithCoordinates)
	assert.Equal(t, 0, res.Stats.Geocoded)
}

func TestPipeline_Run_InputMissingWritesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "listings_clean.csv")
	st := &mockStore{}

	p := New(newFetcher(), geo.IleDeFrance, WithStore(st))
	_, err := p.Run(context.Background(), filepath.Join(dir, "raw_data.json"), out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputUnavailable)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	st.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_BadOutputFormat(t *testing.T) {
	p := New(newFetcher(), geo.IleDeFrance)
	_, err := p.Run(context.Background(), writeFixture(t, rawFixture), filepath.Join(t.TempDir(), "out.txt"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInputUnavailable)
}

func TestPipeline_Run_SnapshotFailureIsNotFatal(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database is locked")).Once()

	p := New(newFetcher(), geo.IleDeFrance, WithStore(st))
	res, err := p.Run(context.Background(), writeFixture(t, rawFixture), "")
	require.NoError(t, err)
	assert.Nil(t, res.Run)
	st.AssertExpectations(t)
}

func TestPipeline_Clean_Deterministic(t *testing.T) {
	raws, err := LoadRaw(context.Background(), newFetcher(), writeFixture(t, rawFixture))
	require.NoError(t, err)

	centroids := map[string]geocode.Centroid{"75015": {Latitude: 48.8412, Longitude: 2.2921}}
	first, _ := New(newFetcher(), geo.IleDeFrance, WithResolver(newResolver(t, centroids, nil))).Clean(context.Background(), raws)
	second, _ := New(newFetcher(), geo.IleDeFrance, WithResolver(newResolver(t, centroids, nil))).Clean(context.Background(), raws)
	assert.Equal(t, first, second)
}
