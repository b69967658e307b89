package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/export"
	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/pipeline"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/geocode"
	"github.com/sells-group/listings-cli/pkg/geocode/mocks"
)

const cleanFixture = `[
	{"title": "T2 Convention", "price": "350 000€", "surface_m2": "45,5", "zipcode": "75015", "url": "https://example.fr/1"},
	{"title": "T3 Vaugirard", "price": 520000, "surface_m2": 61, "zipcode": "75015", "url": "https://example.fr/2"},
	{"title": "No price", "surface_m2": 20}
]`

func writeRaw(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw_data.json")
	require.NoError(t, os.WriteFile(path, []byte(cleanFixture), 0o644))
	return path
}

func centroid75015() map[string]geocode.Centroid {
	return map[string]geocode.Centroid{"75015": {Latitude: 48.8412, Longitude: 2.2945, Places: 1}}
}

func TestClean_EndToEnd(t *testing.T) {
	c := testConfig(t)
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).Return(centroid75015(), nil).Once()

	p := newPipeline(c, newFetcher(c), geo.IleDeFrance, lookup, nil)
	output := filepath.Join(t.TempDir(), "out", "listings_clean.csv")

	res, err := p.Run(context.Background(), writeRaw(t), output)
	require.NoError(t, err)
	assert.Nil(t, res.Run)

	assert.Equal(t, 3, res.Stats.Raw)
	assert.Equal(t, 2, res.Stats.Accepted)
	assert.Equal(t, map[string]int{"missing_price": 1}, res.Stats.Rejected)
	assert.Equal(t, 2, res.Stats.Geocoded)
	assert.Equal(t, 2, res.Stats.Jittered)
	assert.Equal(t, 2, res.Stats.WithCoordinates)

	written, err := export.Read(context.Background(), output)
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.InDelta(t, 7692.31, written[0].PricePerM2, 0.001)
	require.NotNil(t, written[0].Coordinates)
	require.NotNil(t, written[1].Coordinates)
	assert.NotEqual(t, *written[0].Coordinates, *written[1].Coordinates)
	for _, l := range written {
		assert.True(t, geo.IleDeFrance.Contains(l.Coordinates.Latitude, l.Coordinates.Longitude))
	}
}

func TestClean_StoreCachesCentroids(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "listings.db")

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	// The second run is served from the centroid cache.
	lookup := mocks.NewMockClient(t)
	lookup.On("Lookup", mock.Anything, "FR", []string{"75015"}).Return(centroid75015(), nil).Once()

	p := newPipeline(c, newFetcher(c), geo.IleDeFrance, lookup, st)
	raw := writeRaw(t)

	first, err := p.Run(context.Background(), raw, "")
	require.NoError(t, err)
	require.NotNil(t, first.Run)

	second, err := p.Run(context.Background(), raw, "")
	require.NoError(t, err)
	require.NotNil(t, second.Run)
	assert.Equal(t, first.Stats, second.Stats)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	listings, err := st.RunListings(context.Background(), second.Run.ID)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestClean_InputUnavailable(t *testing.T) {
	c := testConfig(t)
	p := newPipeline(c, newFetcher(c), geo.IleDeFrance, nil, nil)

	dir := t.TempDir()
	output := filepath.Join(dir, "listings_clean.csv")
	_, err := p.Run(context.Background(), filepath.Join(dir, "missing.json"), output)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrInputUnavailable))

	_, statErr := os.Stat(output)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no output may be written")
}

func TestFormatCleanSummary(t *testing.T) {
	res := &pipeline.Result{
		Stats: model.RunStats{
			Raw:             6,
			Accepted:        4,
			Rejected:        map[string]int{"missing_price": 1, "invalid_surface": 1},
			Duplicates:      1,
			Geocoded:        2,
			OutOfRegion:     1,
			Jittered:        2,
			WithCoordinates: 3,
		},
		Run: &model.Run{ID: "abc12345-0000"},
	}

	var buf bytes.Buffer
	formatCleanSummary(&buf, "data/listings_clean.csv", res)

	out := buf.String()
	assert.Contains(t, out, "Raw records:")
	assert.Contains(t, out, "Rejected missing_price:")
	assert.Contains(t, out, "Rejected invalid_surface:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("invalid_surface")), bytes.Index(buf.Bytes(), []byte("missing_price")))
	assert.Contains(t, out, "With coordinates:")
	assert.Contains(t, out, "data/listings_clean.csv")
	assert.Contains(t, out, "abc12345-0000")
}
