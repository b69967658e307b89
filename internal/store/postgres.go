package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/db"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/resilience"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var centroidUpsert = db.UpsertConfig{
	Table:        "postal_centroids",
	Columns:      []string{"country", "postal_code", "latitude", "longitude", "places", "updated_at"},
	ConflictKeys: []string{"country", "postal_code"},
	ChangedCols:  []string{"latitude", "longitude", "places"},
}

// NewPostgres creates a PostgresStore with a connection pool. The initial
// ping is retried so a database that is still starting does not fail the run.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("postgres", "ping")
	if err := resilience.Do(ctx, retry, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source     TEXT NOT NULL,
	region     TEXT NOT NULL,
	stats      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	price_eur        DOUBLE PRECISION NOT NULL,
	surface_m2       DOUBLE PRECISION NOT NULL,
	price_per_m2     DOUBLE PRECISION NOT NULL,
	rooms            DOUBLE PRECISION,
	city             TEXT NOT NULL DEFAULT '',
	zipcode          TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	url              TEXT NOT NULL DEFAULT '',
	from_postal_code BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS postal_centroids (
	country     TEXT NOT NULL,
	postal_code TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	places      INTEGER NOT NULL DEFAULT 1,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (country, postal_code)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRun inserts the run and COPYs its listings in one transaction.
func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run, listings []model.Listing) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stats")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (id, source, region, stats, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Source, run.Region, statsJSON, run.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	rows := make([][]any, len(listings))
	for i, l := range listings {
		rows[i] = listingRow(run.ID, i, l)
	}
	if _, err := db.CopyFrom(ctx, tx, "listings", listingColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: copy listings")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit run")
	}
	return &run, nil
}

// GetRun returns one run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, region, stats, created_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

// LatestRun returns the most recent run.
func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, region, stats, created_at FROM runs ORDER BY created_at DESC LIMIT 1`,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, region, stats, created_at FROM runs WHERE ($1 = '' OR source = $1) ORDER BY created_at DESC`
	args := []any{filter.Source}
	if filter.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// RunListings returns the listings of a run in pipeline order.
func (s *PostgresStore) RunListings(ctx context.Context, runID string) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx, listingSelect+` WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: run listings %s", runID)
	}
	defer rows.Close()

	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

// GetCentroids implements geocode.CentroidCache.
func (s *PostgresStore) GetCentroids(ctx context.Context, country string, codes []string) (map[string]geocode.Centroid, error) {
	out := make(map[string]geocode.Centroid, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT postal_code, latitude, longitude, places FROM postal_centroids WHERE country = $1 AND postal_code = ANY($2)`,
		normalizeCountry(country), codes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get centroids")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code string
			c    geocode.Centroid
		)
		if err := rows.Scan(&code, &c.Latitude, &c.Longitude, &c.Places); err != nil {
			return nil, eris.Wrap(err, "postgres: scan centroid")
		}
		out[code] = c
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate centroids")
}

// PutCentroids implements geocode.CentroidCache with a COPY-backed upsert.
func (s *PostgresStore) PutCentroids(ctx context.Context, country string, centroids map[string]geocode.Centroid) error {
	if len(centroids) == 0 {
		return nil
	}
	country = normalizeCountry(country)
	now := time.Now().UTC()

	rows := make([][]any, 0, len(centroids))
	for code, c := range centroids {
		rows = append(rows, []any{country, code, c.Latitude, c.Longitude, c.Places, now})
	}
	_, err := db.BulkUpsert(ctx, s.pool, centroidUpsert, rows)
	return eris.Wrap(err, "postgres: upsert centroids")
}

func scanPgRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		statsJSON []byte
	)
	err := row.Scan(&r.ID, &r.Source, &r.Region, &statsJSON, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
		return nil, eris.Wrap(err, "unmarshal stats")
	}
	return &r, nil
}
