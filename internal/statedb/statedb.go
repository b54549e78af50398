// Package statedb persists the client's resync history in a local SQLite
// database: when the last successful resync happened, how many new items
// each cycle brought in, and a bounded log of recent cycles for the status
// display. It is the durable backing for the scheduler's staleness clock.
package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// historyLimit is how many recent cycles History returns.
const historyLimit = 20

const (
	sqlInsertCycle = `INSERT INTO sync_cycles (started_at, finished_at, outcome, new_items, trigger_kind)
		VALUES (?, ?, ?, ?, ?)`

	sqlLastSuccess = `SELECT finished_at FROM sync_cycles
		WHERE outcome = 'success'
		ORDER BY finished_at DESC LIMIT 1`

	sqlNewItems = `SELECT value FROM counters WHERE name = 'new_items'`

	sqlSetNewItems = `INSERT INTO counters (name, value) VALUES ('new_items', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`

	sqlHistory = `SELECT started_at, finished_at, outcome, new_items, trigger_kind
		FROM sync_cycles ORDER BY finished_at DESC LIMIT ?`
)

// Cycle outcome values for the sync_cycles.outcome column.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cycle trigger values for the sync_cycles.trigger_kind column.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// CycleRecord is one completed resync cycle.
type CycleRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	NewItems   int
	Trigger    string
}

// DB is the sole writer to the client state database.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the state database at dbPath, runs
// migrations, and returns a ready-to-use handle.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statedb: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("state database ready", slog.String("db_path", dbPath))

	return &DB{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordCycle appends a completed resync cycle to the ledger.
func (d *DB) RecordCycle(ctx context.Context, rec CycleRecord) error {
	_, err := d.db.ExecContext(ctx, sqlInsertCycle,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Outcome,
		rec.NewItems,
		rec.Trigger,
	)
	if err != nil {
		return fmt.Errorf("statedb: recording cycle: %w", err)
	}

	return nil
}

// LastSuccess returns the finish time of the most recent successful cycle,
// or the zero time when no cycle has succeeded yet.
func (d *DB) LastSuccess(ctx context.Context) (time.Time, error) {
	var raw string

	err := d.db.QueryRowContext(ctx, sqlLastSuccess).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("statedb: reading last success: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("statedb: parsing last success %q: %w", raw, err)
	}

	return t, nil
}

// NewItems returns the current new-item counter.
func (d *DB) NewItems(ctx context.Context) (int, error) {
	var n int

	err := d.db.QueryRowContext(ctx, sqlNewItems).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("statedb: reading new-item counter: %w", err)
	}

	return n, nil
}

// SetNewItems replaces the new-item counter with the latest cycle's
// discovered count. Both scheduled and manual resyncs write it after a
// successful summary fetch, so the status display always shows what the
// most recent cycle found.
func (d *DB) SetNewItems(ctx context.Context, n int) error {
	if _, err := d.db.ExecContext(ctx, sqlSetNewItems, n); err != nil {
		return fmt.Errorf("statedb: setting new-item counter: %w", err)
	}

	return nil
}

// History returns the most recent cycles, newest first.
func (d *DB) History(ctx context.Context) ([]CycleRecord, error) {
	rows, err := d.db.QueryContext(ctx, sqlHistory, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("statedb: reading history: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord

	for rows.Next() {
		var (
			rec                  CycleRecord
			startedRaw, finished string
		)

		if err := rows.Scan(&startedRaw, &finished, &rec.Outcome, &rec.NewItems, &rec.Trigger); err != nil {
			return nil, fmt.Errorf("statedb: scanning cycle row: %w", err)
		}

		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedRaw); err != nil {
			return nil, fmt.Errorf("statedb: parsing started_at %q: %w", startedRaw, err)
		}

		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("statedb: parsing finished_at %q: %w", finished, err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statedb: iterating history: %w", err)
	}

	return out, nil
}
