// Package store persists cleaned listing runs and the postal-code centroid
// cache in SQLite or Postgres.
package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store persists pipeline runs. It doubles as the centroid cache for the
// geocoder.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run, listings []model.Listing) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	RunListings(ctx context.Context, runID string) ([]model.Listing, error)

	// Centroid cache
	geocode.CentroidCache

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Driver string
	DSN    string
	Pool   *PoolConfig
}

// Open connects to the configured backend and runs its migration. The none
// driver returns a nil Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "store: create database dir")
			}
		}
		s, err = NewSQLite(cfg.DSN)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg.DSN, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// listingColumns is the column order shared by both backends.
var listingColumns = []string{
	"run_id", "position", "title", "price_eur", "surface_m2", "price_per_m2",
	"rooms", "city", "zipcode", "latitude", "longitude", "url", "from_postal_code",
}

// listingRow flattens a listing into listingColumns order.
func listingRow(runID string, pos int, l model.Listing) []any {
	var lat, lon *float64
	if l.Coordinates != nil {
		lat, lon = &l.Coordinates.Latitude, &l.Coordinates.Longitude
	}
	return []any{
		runID, pos, l.Title, l.PriceEUR, l.SurfaceM2, l.PricePerM2,
		l.Rooms, l.City, l.ZipCode, lat, lon, l.URL, l.FromPostalCode,
	}
}

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanListing reads the columns selected by listingSelect.
func scanListing(row scannable) (model.Listing, error) {
	var (
		l        model.Listing
		lat, lon *float64
	)
	if err := row.Scan(
		&l.Title, &l.PriceEUR, &l.SurfaceM2, &l.PricePerM2,
		&l.Rooms, &l.City, &l.ZipCode, &lat, &lon, &l.URL, &l.FromPostalCode,
	); err != nil {
		return model.Listing{}, err
	}
	if lat != nil && lon != nil {
		l.Coordinates = &model.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	return l, nil
}

const listingSelect = `SELECT title, price_eur, surface_m2, price_per_m2, rooms, city, zipcode, latitude, longitude, url, from_postal_code FROM listings`

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
