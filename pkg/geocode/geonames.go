package geocode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/fetcher"
)

const geoNamesBaseURL = "https://download.geonames.org/export/zip"

// Column positions in the GeoNames postal-code dump (tab separated):
// country, postal code, place, admin1 name/code, admin2 name/code,
// admin3 name/code, latitude, longitude, accuracy.
const (
	gnColPostalCode = 1
	gnColLatitude   = 9
	gnColLongitude  = 10
	gnMinColumns    = 11
)

// GeoNamesClient resolves postal codes from the GeoNames per-country dump,
// averaging every place that shares a code. Each country table is downloaded
// once and kept in memory and in the cache directory.
type GeoNamesClient struct {
	fetcher  fetcher.Fetcher
	baseURL  string
	cacheDir string

	mu     sync.Mutex
	tables map[string]map[string]Centroid
}

func newGeoNamesClient(o *options) *GeoNamesClient {
	f := o.fetcher
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = geoNamesBaseURL
	}
	cacheDir := o.cacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "listings-cli", "geonames")
	}
	return &GeoNamesClient{
		fetcher:  f,
		baseURL:  baseURL,
		cacheDir: cacheDir,
		tables:   make(map[string]map[string]Centroid),
	}
}

// Lookup implements Client.
func (c *GeoNamesClient) Lookup(ctx context.Context, country string, codes []string) (map[string]Centroid, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return map[string]Centroid{}, nil
	}

	table, err := c.table(ctx, strings.ToUpper(country))
	if err != nil {
		return nil, err
	}

	out := make(map[string]Centroid, len(codes))
	for _, code := range codes {
		if cen, ok := table[code]; ok {
			out[code] = cen
		}
	}

	zap.L().Debug("geonames: lookup",
		zap.String("country", country),
		zap.Int("requested", len(codes)),
		zap.Int("matched", len(out)),
	)
	return out, nil
}

// table returns the centroid table for a country, loading it on first use.
func (c *GeoNamesClient) table(ctx context.Context, country string) (map[string]Centroid, error) {
	if len(country) != 2 {
		return nil, eris.Errorf("geonames: invalid country code %q", country)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[country]; ok {
		return t, nil
	}

	path, err := c.ensureDump(ctx, country)
	if err != nil {
		return nil, err
	}

	t, err := parseGeoNamesDump(ctx, path)
	if err != nil {
		return nil, err
	}
	c.tables[country] = t
	return t, nil
}

// ensureDump returns the path of the extracted <CC>.txt, downloading the
// archive when the cache directory does not hold it yet.
func (c *GeoNamesClient) ensureDump(ctx context.Context, country string) (string, error) {
	name := country + ".txt"
	path := filepath.Join(c.cacheDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "geonames: create cache dir")
	}

	archive := filepath.Join(c.cacheDir, country+".zip")
	url := fmt.Sprintf("%s/%s.zip", c.baseURL, country)

	log := zap.L().With(zap.String("url", url))
	log.Info("geonames: downloading postal code dataset")

	n, err := c.fetcher.DownloadToFile(ctx, url, archive)
	if err != nil {
		return "", eris.Wrapf(err, "geonames: download %s", country)
	}
	defer os.Remove(archive) //nolint:errcheck

	extracted, err := fetcher.ExtractZIPFile(archive, name, c.cacheDir)
	if err != nil {
		return "", eris.Wrapf(err, "geonames: extract %s", name)
	}

	log.Info("geonames: dataset ready", zap.Int64("bytes", n), zap.String("path", extracted))
	return extracted, nil
}

// parseGeoNamesDump averages the coordinates of every place per postal code.
// Rows with unparseable coordinates are skipped.
func parseGeoNamesDump(ctx context.Context, path string) (map[string]Centroid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "geonames: open dump")
	}
	defer f.Close() //nolint:errcheck

	rows, errs := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  '\t',
		LazyQuotes: true,
	})

	sums := make(map[string]*mean)
	for row := range rows {
		if len(row) < gnMinColumns {
			continue
		}
		code := strings.TrimSpace(row[gnColPostalCode])
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[gnColLatitude]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[gnColLongitude]), 64)
		if code == "" || latErr != nil || lonErr != nil {
			continue
		}
		m, ok := sums[code]
		if !ok {
			m = &mean{}
			sums[code] = m
		}
		m.add(lat, lon)
	}
	for err := range errs {
		if err != nil {
			return nil, eris.Wrap(err, "geonames: parse dump")
		}
	}

	out := make(map[string]Centroid, len(sums))
	for code, m := range sums {
		out[code] = m.centroid()
	}
	return out, nil
}
