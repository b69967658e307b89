package normalize

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/geo"
	"github.com/sells-group/listings-cli/internal/model"
)

// Stats counts what happened to a batch.
type Stats struct {
	Raw        int
	Accepted   int
	Rejected   map[string]int
	Duplicates int
	// SourceCoordinates counts accepted records that kept scraped coordinates.
	SourceCoordinates int
}

// Dedupe keeps the first listing for each (url, title) pair, preserving order.
// Two listings with empty url and title are duplicates of each other.
func Dedupe(listings []model.Listing) ([]model.Listing, int) {
	type key struct{ url, title string }

	seen := make(map[key]struct{}, len(listings))
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		k := key{url: l.URL, title: l.Title}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out, len(listings) - len(out)
}

// Batch normalizes every raw record, drops rejects and removes duplicates.
func Batch(raws []model.RawListing, region geo.Region) ([]model.Listing, Stats) {
	stats := Stats{Raw: len(raws), Rejected: make(map[string]int)}

	cleaned := make([]model.Listing, 0, len(raws))
	for i, raw := range raws {
		l, err := Record(raw, region)
		if err != nil {
			var rej *RejectError
			if errors.As(err, &rej) {
				stats.Rejected[rej.Reason]++
			}
			zap.L().Debug("normalize: record rejected", zap.Int("index", i), zap.Error(err))
			continue
		}
		cleaned = append(cleaned, l)
	}

	out, dups := Dedupe(cleaned)
	stats.Duplicates = dups
	stats.Accepted = len(out)
	for _, l := range out {
		if l.HasCoordinates() {
			stats.SourceCoordinates++
		}
	}

	zap.L().Info("normalize: batch cleaned",
		zap.Int("raw", stats.Raw),
		zap.Int("accepted", stats.Accepted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Any("rejected", stats.Rejected),
	)
	return out, stats
}
