package dashboard

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/export"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/store"
)

// ErrNoData is returned by a Source before the first pipeline run.
var ErrNoData = eris.New("dashboard: no data yet")

// ErrRunNotFound is returned by a StoreSource pinned to a run that does not
// exist.
var ErrRunNotFound = eris.New("dashboard: run not found")

// Source provides the snapshot being served.
type Source interface {
	Listings(ctx context.Context) ([]model.Listing, error)
}

// FileSource reads a table written by the clean command.
type FileSource struct {
	Path string
}

// Listings implements Source.
func (s FileSource) Listings(ctx context.Context) ([]model.Listing, error) {
	if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoData
	}
	return export.Read(ctx, s.Path)
}

// RunReader is the part of store.Store a StoreSource needs.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)
	RunListings(ctx context.Context, runID string) ([]model.Listing, error)
}

// StoreSource serves a stored run, the latest one when RunID is empty.
type StoreSource struct {
	Runs  RunReader
	RunID string
}

// Listings implements Source.
func (s StoreSource) Listings(ctx context.Context) ([]model.Listing, error) {
	if s.RunID == "" {
		run, err := s.Runs.LatestRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoData
		}
		if err != nil {
			return nil, eris.Wrap(err, "dashboard: latest run")
		}
		return s.Runs.RunListings(ctx, run.ID)
	}

	run, err := s.Runs.GetRun(ctx, s.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrRunNotFound, "dashboard: run %s", s.RunID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: get run %s", s.RunID)
	}
	return s.Runs.RunListings(ctx, run.ID)
}
