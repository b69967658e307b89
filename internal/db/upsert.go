package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a COPY-backed INSERT ... ON CONFLICT.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // column order of every row
	ConflictKeys []string // columns of the unique constraint
	UpdateCols   []string // nil updates every non-key column

	// ChangedCols limits updates to rows where one of these columns differs.
	// Columns outside the list (timestamps) then only move with a real change.
	ChangedCols []string
}

// upsertPlan holds the statements of one upsert.
type upsertPlan struct {
	temp   string
	create string
	insert string
}

func (cfg UpsertConfig) validate() error {
	switch {
	case cfg.Table == "":
		return eris.New("db: upsert: no table specified")
	case len(cfg.Columns) == 0:
		return eris.New("db: upsert: no columns specified")
	case len(cfg.ConflictKeys) == 0:
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// updateColumns returns UpdateCols or every column outside the conflict key.
func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	keys := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		keys[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func (cfg UpsertConfig) plan() upsertPlan {
	temp := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	target := sanitizeTable(cfg.Table)
	cols := quoteAndJoin(cfg.Columns)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		target, cols, cols, pgx.Identifier{temp}.Sanitize(), quoteAndJoin(cfg.ConflictKeys))

	update := cfg.updateColumns()
	if len(update) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		sets := make([]string, len(update))
		for i, c := range update {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		b.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))

		if len(cfg.ChangedCols) > 0 {
			guards := make([]string, len(cfg.ChangedCols))
			for i, c := range cfg.ChangedCols {
				q := pgx.Identifier{c}.Sanitize()
				guards[i] = fmt.Sprintf("%s.%s IS DISTINCT FROM EXCLUDED.%s", target, q, q)
			}
			b.WriteString(" WHERE " + strings.Join(guards, " OR "))
		}
	}

	return upsertPlan{
		temp:   temp,
		create: fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", pgx.Identifier{temp}.Sanitize(), target),
		insert: b.String(),
	}
}

// BulkUpsert stages rows in a temp table with COPY, then merges them into
// the target in one statement. Everything runs in a single transaction. It
// returns the number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	p := cfg.plan()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, p.create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{p.temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, p.insert)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a table name, keeping a schema prefix apart.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
