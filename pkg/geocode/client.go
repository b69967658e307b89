// Package geocode resolves postal codes to centroid coordinates via the
// GeoNames postal-code dataset (default) or the French geo.api.gouv.fr API.
package geocode

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/resilience"
)

// Client resolves a batch of postal codes for one country in a single call.
type Client interface {
	// Lookup returns a centroid for each code that matched. Codes without a
	// match are absent from the map; that is not an error.
	Lookup(ctx context.Context, country string, codes []string) (map[string]Centroid, error)
}

// Centroid is the representative position of a postal code.
type Centroid struct {
	Latitude  float64
	Longitude float64
	Places    int // number of places averaged into the centroid
}

// Provider names accepted by NewClient.
const (
	ProviderGeoNames = "geonames"
	ProviderGeoAPI   = "geoapi"
)

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	fetcher     fetcher.Fetcher
	limiter     *rate.Limiter
	baseURL     string
	cacheDir    string
	concurrency int
	retry       resilience.RetryConfig
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithFetcher sets the downloader used for dataset archives.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(u, "/")
	}
}

// WithCacheDir sets where downloaded datasets are kept between runs.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithConcurrency caps parallel API calls within one batch.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRetry sets the retry policy for API calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

func defaultOptions() *options {
	return &options{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(10, 10),
		concurrency: 4,
		retry:       resilience.DefaultRetryConfig(),
	}
}

// NewClient builds the named provider.
func NewClient(provider string, opts ...Option) (Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	switch strings.ToLower(provider) {
	case "", ProviderGeoNames:
		return newGeoNamesClient(o), nil
	case ProviderGeoAPI:
		return newGeoAPIClient(o), nil
	default:
		return nil, eris.Errorf("geocode: unknown provider %q", provider)
	}
}

// normalizeCodes trims, deduplicates and sorts a batch of codes.
func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// mean averages a set of points into one centroid.
type mean struct {
	lat, lon float64
	n        int
}

func (m *mean) add(lat, lon float64) {
	m.lat += lat
	m.lon += lon
	m.n++
}

func (m mean) centroid() Centroid {
	return Centroid{
		Latitude:  m.lat / float64(m.n),
		Longitude: m.lon / float64(m.n),
		Places:    m.n,
	}
}
