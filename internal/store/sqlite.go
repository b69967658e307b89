package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	region     TEXT NOT NULL,
	stats      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS listings (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	price_eur        REAL NOT NULL,
	surface_m2       REAL NOT NULL,
	price_per_m2     REAL NOT NULL,
	rooms            REAL,
	city             TEXT NOT NULL DEFAULT '',
	zipcode          TEXT NOT NULL DEFAULT '',
	latitude         REAL,
	longitude        REAL,
	url              TEXT NOT NULL DEFAULT '',
	from_postal_code INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS postal_centroids (
	country     TEXT NOT NULL,
	postal_code TEXT NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	places      INTEGER NOT NULL DEFAULT 1,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (country, postal_code)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun stores the run summary and its listings in one transaction.
func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run, listings []model.Listing) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stats")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, region, stats, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Region, string(statsJSON), run.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO listings (`+strings.Join(listingColumns, ", ")+`) VALUES (`+placeholders(len(listingColumns))+`)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare listing insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, l := range listings {
		if _, err := stmt.ExecContext(ctx, listingRow(run.ID, i, l)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert listing %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run")
	}
	return &run, nil
}

// GetRun returns one run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, region, stats, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

// LatestRun returns the most recent run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, region, stats, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, region, stats, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// RunListings returns the listings of a run in pipeline order.
func (s *SQLiteStore) RunListings(ctx context.Context, runID string) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, listingSelect+` WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: run listings %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

// GetCentroids implements geocode.CentroidCache.
func (s *SQLiteStore) GetCentroids(ctx context.Context, country string, codes []string) (map[string]geocode.Centroid, error) {
	out := make(map[string]geocode.Centroid, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(codes)+1)
	args = append(args, normalizeCountry(country))
	for _, c := range codes {
		args = append(args, c)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT postal_code, latitude, longitude, places FROM postal_centroids
		 WHERE country = ? AND postal_code IN (`+placeholders(len(codes))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get centroids")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			code string
			c    geocode.Centroid
		)
		if err := rows.Scan(&code, &c.Latitude, &c.Longitude, &c.Places); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan centroid")
		}
		out[code] = c
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate centroids")
}

// PutCentroids implements geocode.CentroidCache.
func (s *SQLiteStore) PutCentroids(ctx context.Context, country string, centroids map[string]geocode.Centroid) error {
	if len(centroids) == 0 {
		return nil
	}
	country = normalizeCountry(country)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO postal_centroids (country, postal_code, latitude, longitude, places, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(country, postal_code) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			places = excluded.places,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare centroid upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for code, c := range centroids {
		if _, err := stmt.ExecContext(ctx, country, code, c.Latitude, c.Longitude, c.Places, now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert centroid %s", code)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit centroids")
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		statsJSON string
	)
	err := row.Scan(&r.ID, &r.Source, &r.Region, &statsJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "unmarshal stats")
	}
	return &r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
