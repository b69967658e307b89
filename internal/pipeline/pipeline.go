// Package pipeline runs the listing cleaning batch: load, normalize, resolve
// coordinates, export and snapshot.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/export"
	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/normalize"
	"github.com/sells-group/listings-cli/internal/store"
)

// Pipeline turns one raw scrape into a cleaned listing table.
type Pipeline struct {
	fetcher  fetcher.Fetcher
	region   geo.Region
	resolver *geo.Resolver
	store    store.Store
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver enables postal-code coordinate filling and jitter. Without it
// listings keep only the coordinates they were scraped with.
func WithResolver(r *geo.Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithStore snapshots every successful run.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// New creates a Pipeline for region.
func New(f fetcher.Fetcher, region geo.Region, opts ...Option) *Pipeline {
	p := &Pipeline{fetcher: f, region: region}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of a run.
type Result struct {
	Listings []model.Listing
	Stats    model.RunStats
	Run      *model.Run // nil when no store is configured or the snapshot failed
}

// Clean normalizes and resolves raw records. It does no I/O beyond the
// resolver's postal-code lookup.
func (p *Pipeline) Clean(ctx context.Context, raws []model.RawListing) ([]model.Listing, model.RunStats) {
	listings, ns := normalize.Batch(raws, p.region)
	stats := model.RunStats{
		Raw:        ns.Raw,
		Accepted:   ns.Accepted,
		Rejected:   ns.Rejected,
		Duplicates: ns.Duplicates,
	}

	if p.resolver != nil {
		var rs geo.ResolveStats
		listings, rs = p.resolver.Resolve(ctx, listings)
		stats.Geocoded = rs.Geocoded - rs.ClearedAfterSpread
		stats.OutOfRegion = rs.OutOfRegion + rs.ClearedAfterSpread
		stats.Jittered = rs.Jittered
	}

	for _, l := range listings {
		if l.HasCoordinates() {
			stats.WithCoordinates++
		}
	}
	return listings, stats
}

// Run loads source, cleans it and writes the table to output. An
// unreadable source fails with ErrInputUnavailable before anything is
// written. A failed snapshot is logged and does not fail the run.
func (p *Pipeline) Run(ctx context.Context, source, output string) (*Result, error) {
	log := zap.L().With(zap.String("source", source), zap.String("output", output))
	log.Info("pipeline: starting run")
	start := time.Now()

	if output != "" {
		if _, err := export.FormatOf(output); err != nil {
			return nil, eris.Wrap(err, "pipeline: output")
		}
	}

	raws, err := LoadRaw(ctx, p.fetcher, source)
	if err != nil {
		return nil, err
	}

	listings, stats := p.Clean(ctx, raws)
	result := &Result{Listings: listings, Stats: stats}

	if output != "" {
		if err := export.Write(output, listings); err != nil {
			return nil, eris.Wrap(err, "pipeline: write output")
		}
	}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, model.Run{
			Source: source,
			Region: p.region.Name,
			Stats:  stats,
		}, listings)
		if err != nil {
			log.Warn("pipeline: snapshot failed", zap.Error(err))
		} else {
			result.Run = run
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("raw", stats.Raw),
		zap.Int("accepted", stats.Accepted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("geocoded", stats.Geocoded),
		zap.Int("jittered", stats.Jittered),
		zap.Int("with_coordinates", stats.WithCoordinates),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
