package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	discovered  INTEGER NOT NULL DEFAULT 0,
	extracted   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	records     INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshot_runs_source ON snapshot_runs (source, started_at DESC);

CREATE TABLE IF NOT EXISTS price_snapshots (
	source       TEXT NOT NULL,
	position     INTEGER NOT NULL,
	run_id       UUID NOT NULL REFERENCES snapshot_runs (id),
	card_number  TEXT NOT NULL,
	set_code     TEXT NOT NULL,
	rarity       TEXT NOT NULL,
	price_jpy    BIGINT NOT NULL CHECK (price_jpy > 0),
	condition    TEXT NOT NULL DEFAULT '',
	in_stock     BOOLEAN NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	url          TEXT NOT NULL,
	PRIMARY KEY (source, position),
	UNIQUE (source, set_code, card_number, rarity)
);`

var snapshotColumns = []string{
	"source", "position", "run_id", "card_number", "set_code", "rarity",
	"price_jpy", "condition", "in_stock", "last_updated", "url",
}

// SnapshotRepository stores price snapshots in Postgres. Each save replaces
// the source's rows and records the producing run.
type SnapshotRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSnapshotRepository(db *DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger.With("component", "snapshot_repository"),
		now:    time.Now,
	}
}

func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Save stores records under a fresh run ID.
func (r *SnapshotRepository) Save(ctx context.Context, source models.Source, records []models.PriceRecord) error {
	now := r.now()
	return r.SaveRun(ctx, storage.Run{
		ID:         uuid.New(),
		Source:     source,
		StartedAt:  now,
		FinishedAt: now,
		Extracted:  len(records),
	}, records)
}

func (r *SnapshotRepository) SaveRun(ctx context.Context, run storage.Run, records []models.PriceRecord) error {
	if !run.Source.IsValid() {
		return fmt.Errorf("%w: %q", storage.ErrUnknownSource, run.Source)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO snapshot_runs
				(id, source, started_at, finished_at, discovered, extracted, skipped, failed, records)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID, string(run.Source), run.StartedAt, run.FinishedAt,
			run.Discovered, run.Extracted, run.Skipped, run.Failed, len(records))
		if err != nil {
			return fmt.Errorf("failed to insert snapshot run: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM price_snapshots WHERE source = $1`, string(run.Source)); err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"price_snapshots"},
			snapshotColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := records[i]
				return []any{
					string(run.Source), i, run.ID, rec.CardNumber, rec.SetCode, rec.Rarity,
					rec.PriceJPY, rec.Condition, rec.InStock, rec.LastUpdated, rec.URL,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to copy snapshot rows: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("snapshot saved", "source", run.Source, "run_id", run.ID, "records", len(records))
	return nil
}

// Load returns the current snapshot in the order it was saved.
func (r *SnapshotRepository) Load(ctx context.Context, source models.Source) ([]models.PriceRecord, error) {
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownSource, source)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT card_number, set_code, rarity, price_jpy, condition, in_stock, last_updated, url
		FROM price_snapshots
		WHERE source = $1
		ORDER BY position`, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PriceRecord, error) {
		var rec models.PriceRecord
		err := row.Scan(&rec.CardNumber, &rec.SetCode, &rec.Rarity, &rec.PriceJPY,
			&rec.Condition, &rec.InStock, &rec.LastUpdated, &rec.URL)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	return storage.ValidRecords(records, source, r.logger), nil
}

// LatestRun returns the most recent run for source, or nil if there is none.
func (r *SnapshotRepository) LatestRun(ctx context.Context, source models.Source) (*storage.Run, error) {
	var run storage.Run
	var src string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, source, started_at, finished_at, discovered, extracted, skipped, failed
		FROM snapshot_runs
		WHERE source = $1
		ORDER BY started_at DESC
		LIMIT 1`, string(source)).Scan(
		&run.ID, &src, &run.StartedAt, &run.FinishedAt,
		&run.Discovered, &run.Extracted, &run.Skipped, &run.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	run.Source = models.Source(src)
	return &run, nil
}
