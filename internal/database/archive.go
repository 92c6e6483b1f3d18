package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const createAreasTable = `
	CREATE TABLE IF NOT EXISTS areas (
		name       TEXT PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen  TIMESTAMPTZ NOT NULL
	)
`

const upsertArea = `
	INSERT INTO areas (name, first_seen, last_seen)
	VALUES ($1, $2, $2)
	ON CONFLICT (name) DO UPDATE SET last_seen = EXCLUDED.last_seen
`

// Querier is the subset of pgxpool.Pool used by the archive.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ArchivedArea is one row of the areas table.
type ArchivedArea struct {
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
}

// AreaArchive records every area name seen in the outage feed. The API never
// reads it.
type AreaArchive struct {
	db Querier
}

// NewAreaArchive creates an archive on db.
func NewAreaArchive(db Querier) *AreaArchive {
	return &AreaArchive{db: db}
}

// Bootstrap creates the areas table if it does not exist.
func (a *AreaArchive) Bootstrap(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, createAreasTable); err != nil {
		return fmt.Errorf("create areas table: %w", err)
	}
	return nil
}

// Upsert inserts new names and bumps last_seen on known ones.
func (a *AreaArchive) Upsert(ctx context.Context, names []string, seenAt time.Time) error {
	if len(names) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(upsertArea, name, seenAt)
	}

	results := a.db.SendBatch(ctx, batch)
	for i := range names {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert area %q: %w", names[i], err)
		}
	}
	return results.Close()
}

// List returns every archived area ordered by name.
func (a *AreaArchive) List(ctx context.Context) ([]ArchivedArea, error) {
	rows, err := a.db.Query(ctx, `SELECT name, first_seen, last_seen FROM areas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}

	areas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ArchivedArea, error) {
		var area ArchivedArea
		err := row.Scan(&area.Name, &area.FirstSeen, &area.LastSeen)
		return area, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan areas: %w", err)
	}
	return areas, nil
}
