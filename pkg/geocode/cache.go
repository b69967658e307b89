package geocode

import (
	"context"

	"go.uber.org/zap"
)

// CentroidCache persists resolved centroids between runs.
type CentroidCache interface {
	GetCentroids(ctx context.Context, country string, codes []string) (map[string]Centroid, error)
	PutCentroids(ctx context.Context, country string, centroids map[string]Centroid) error
}

// CachedClient serves codes from a CentroidCache and sends the misses to the
// wrapped Client in one batch. Cache failures degrade to uncached lookups.
type CachedClient struct {
	next  Client
	cache CentroidCache
}

// NewCachedClient wraps next with cache.
func NewCachedClient(next Client, cache CentroidCache) *CachedClient {
	return &CachedClient{next: next, cache: cache}
}

// Lookup implements Client.
func (c *CachedClient) Lookup(ctx context.Context, country string, codes []string) (map[string]Centroid, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return map[string]Centroid{}, nil
	}

	hits, err := c.cache.GetCentroids(ctx, country, codes)
	if err != nil {
		zap.L().Warn("geocode: centroid cache read failed", zap.Error(err))
		hits = nil
	}

	out := make(map[string]Centroid, len(codes))
	var misses []string
	for _, code := range codes {
		if cen, ok := hits[code]; ok {
			out[code] = cen
			continue
		}
		misses = append(misses, code)
	}

	zap.L().Debug("geocode: centroid cache",
		zap.Int("hits", len(out)),
		zap.Int("misses", len(misses)),
	)
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := c.next.Lookup(ctx, country, misses)
	if err != nil {
		if len(out) > 0 {
			zap.L().Warn("geocode: lookup failed, serving cached centroids only", zap.Error(err))
			return out, nil
		}
		return nil, err
	}

	if len(fresh) > 0 {
		if err := c.cache.PutCentroids(ctx, country, fresh); err != nil {
			zap.L().Warn("geocode: centroid cache write failed", zap.Error(err))
		}
	}
	for code, cen := range fresh {
		out[code] = cen
	}
	return out, nil
}
