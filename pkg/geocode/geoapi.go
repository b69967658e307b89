package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/listings-cli/internal/resilience"
)

const geoAPIBaseURL = "https://geo.api.gouv.fr"

// geoAPICommune is one element of the /communes response.
type geoAPICommune struct {
	Nom    string          `json:"nom"`
	Centre json.RawMessage `json:"centre"`
}

// GeoAPIClient resolves French postal codes against geo.api.gouv.fr. A postal
// code may cover several communes; their centres are averaged.
type GeoAPIClient struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	concurrency int
	retry       resilience.RetryConfig
}

func newGeoAPIClient(o *options) *GeoAPIClient {
	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = geoAPIBaseURL
	}
	retry := o.retry
	retry.OnRetry = resilience.RetryLogger("geoapi", "communes")
	return &GeoAPIClient{
		httpClient:  o.httpClient,
		baseURL:     baseURL,
		limiter:     o.limiter,
		concurrency: o.concurrency,
		retry:       retry,
	}
}

// Lookup implements Client. Individual code failures are logged and leave
// the code unmatched; they do not fail the batch.
func (c *GeoAPIClient) Lookup(ctx context.Context, country string, codes []string) (map[string]Centroid, error) {
	if !strings.EqualFold(country, "FR") {
		return nil, eris.Errorf("geoapi: only FR postal codes are supported, got %q", country)
	}

	codes = normalizeCodes(codes)
	out := make(map[string]Centroid, len(codes))
	var mu sync.Mutex

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.concurrency)

	for _, code := range codes {
		eg.Go(func() error {
			cen, ok, err := c.lookupOne(gCtx, code)
			if err != nil {
				zap.L().Debug("geoapi: lookup failed", zap.String("postal_code", code), zap.Error(err))
				return nil //nolint:nilerr // one failed code does not fail the batch
			}
			if ok {
				mu.Lock()
				out[code] = cen
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "geoapi: lookup cancelled")
	}
	return out, nil
}

func (c *GeoAPIClient) lookupOne(ctx context.Context, code string) (Centroid, bool, error) {
	communes, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]geoAPICommune, error) {
		return c.fetchCommunes(ctx, code)
	})
	if err != nil {
		return Centroid{}, false, err
	}

	var m mean
	for _, commune := range communes {
		if len(commune.Centre) == 0 {
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(commune.Centre, &g); err != nil {
			zap.L().Debug("geoapi: bad centre", zap.String("commune", commune.Nom), zap.Error(err))
			continue
		}
		p, ok := g.(*geom.Point)
		if !ok || p.Empty() {
			continue
		}
		m.add(p.Y(), p.X())
	}
	if m.n == 0 {
		return Centroid{}, false, nil
	}
	return m.centroid(), true, nil
}

func (c *GeoAPIClient) fetchCommunes(ctx context.Context, code string) ([]geoAPICommune, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geoapi: rate limit")
	}

	params := url.Values{
		"codePostal": {code},
		"fields":     {"nom,centre"},
		"format":     {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/communes?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geoapi: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geoapi: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromResponse(resp, eris.Errorf("geoapi: returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geoapi: read body")
	}

	var communes []geoAPICommune
	if err := json.Unmarshal(body, &communes); err != nil {
		return nil, eris.Wrap(err, "geoapi: parse response")
	}
	return communes, nil
}
