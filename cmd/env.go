package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/config"
	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/pipeline"
	"github.com/sells-group/listings-cli/internal/resilience"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// pipelineEnv holds the clients and the pipeline needed by the clean
// command. Callers should defer env.Close().
type pipelineEnv struct {
	Store    store.Store // nil when snapshots are disabled
	Region   geo.Region
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// envOptions are the per-invocation overrides of the config file.
type envOptions struct {
	Region    string
	Provider  string
	NoStore   bool
	NoGeocode bool
}

// loadRegion resolves a region preset by name, falling back to the
// configured one.
func loadRegion(c *config.Config, name string) (geo.Region, error) {
	if name == "" {
		name = c.Region.Name
	}
	presets, err := geo.Presets(c.Region.PresetsFile)
	if err != nil {
		return geo.Region{}, err
	}
	return geo.Lookup(presets, name)
}

func retryConfig(c *config.Config) resilience.RetryConfig {
	r := c.Geocode.Retry
	return resilience.FromSettings(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs)
}

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Fetch.UserAgent,
		Timeout:   time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		Retry:     retryConfig(c),
	})
}

// newGeocoder builds the configured postal lookup provider.
func newGeocoder(c *config.Config, f fetcher.Fetcher, provider string) (geocode.Client, error) {
	if provider == "" {
		provider = c.Geocode.Provider
	}
	opts := []geocode.Option{
		geocode.WithFetcher(f),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Geocode.TimeoutSecs) * time.Second}),
		geocode.WithRateLimit(c.Geocode.RateLimit),
		geocode.WithConcurrency(c.Geocode.Concurrency),
		geocode.WithCacheDir(c.Geocode.CacheDir),
		geocode.WithRetry(retryConfig(c)),
	}
	if c.Geocode.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(c.Geocode.BaseURL))
	}
	return geocode.NewClient(provider, opts...)
}

// initStore opens the configured snapshot store. It returns nil when the
// driver is none.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver: c.Store.Driver,
		DSN:    c.Store.DatabaseURL,
		Pool: &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		},
	})
}

// newPipeline wires a pipeline from already-built collaborators. lookup and
// st may be nil.
func newPipeline(c *config.Config, f fetcher.Fetcher, region geo.Region, lookup geocode.Client, st store.Store) *pipeline.Pipeline {
	var opts []pipeline.Option
	if lookup != nil {
		if st != nil && c.Geocode.Cache {
			lookup = geocode.NewCachedClient(lookup, st)
		}
		jitter := geo.JitterConfig{
			MaxOffsetMeters: c.Jitter.MaxOffsetMeters,
			MinFraction:     c.Jitter.MinFraction,
		}
		opts = append(opts, pipeline.WithResolver(geo.NewResolver(lookup, region, c.Geocode.Country, jitter)))
	}
	if st != nil {
		opts = append(opts, pipeline.WithStore(st))
	}
	return pipeline.New(f, region, opts...)
}

// initPipeline sets up the store, the postal lookup and the pipeline.
func initPipeline(ctx context.Context, c *config.Config, o envOptions) (*pipelineEnv, error) {
	region, err := loadRegion(c, o.Region)
	if err != nil {
		return nil, err
	}

	f := newFetcher(c)

	var lookup geocode.Client
	if !o.NoGeocode {
		lookup, err = newGeocoder(c, f, o.Provider)
		if err != nil {
			return nil, err
		}
	}

	var st store.Store
	if !o.NoStore {
		st, err = initStore(ctx, c)
		if err != nil {
			return nil, eris.Wrap(err, "init store")
		}
	}

	zap.L().Debug("pipeline environment ready",
		zap.String("region", region.Name),
		zap.Bool("geocode", lookup != nil),
		zap.Bool("store", st != nil),
	)

	return &pipelineEnv{
		Store:    st,
		Region:   region,
		Pipeline: newPipeline(c, f, region, lookup, st),
	}, nil
}
