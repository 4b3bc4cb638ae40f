package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/model"
)

// DefaultKeepSnapshots is how many snapshots survive pruning when the
// writer is not configured otherwise.
const DefaultKeepSnapshots = 20

const dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath        string // path to SQLite database file, e.g. "data/portfolio.db"
	KeepSnapshots int    // <= 0 means DefaultKeepSnapshots
	Metrics       *metrics.Metrics
}

// Writer is the single writer for snapshot storage.
type Writer struct {
	db      *sql.DB
	keep    int
	metrics *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.KeepSnapshots
	if keep <= 0 {
		keep = DefaultKeepSnapshots
	}

	log.Printf("[sqlite] opened database at %s (keep=%d)", cfg.DBPath, keep)
	return &Writer{db: db, keep: keep, metrics: cfg.Metrics}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT    NOT NULL UNIQUE,
			taken_at     INTEGER NOT NULL,
			source       TEXT    NOT NULL DEFAULT '',
			record_count INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots (taken_at DESC, seq DESC);

		CREATE TABLE IF NOT EXISTS snapshot_records (
			snapshot_id     TEXT    NOT NULL,
			pos             INTEGER NOT NULL,
			record_id       TEXT    NOT NULL,
			kind            TEXT    NOT NULL,
			symbol          TEXT    NOT NULL DEFAULT '',
			name            TEXT    NOT NULL DEFAULT '',
			asset_type      TEXT    NOT NULL DEFAULT '',
			exchange        TEXT    NOT NULL DEFAULT '',
			quantity        REAL    NOT NULL,
			reference_price REAL    NOT NULL,
			last_price      REAL    NOT NULL,
			multiplier      REAL    NOT NULL DEFAULT 0,
			direction       TEXT    NOT NULL DEFAULT '',
			day_change      REAL    NOT NULL DEFAULT 0,
			unrealized_pnl  REAL    NOT NULL DEFAULT 0,
			leverage        REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, pos)
		);
	`)
	return err
}

// SaveSnapshot writes the snapshot header and its records in one
// transaction, then prunes to the newest KeepSnapshots. An empty ID is
// replaced with a fresh UUID and a zero TakenAt with the current time.
// It returns the stored ID.
func (w *Writer) SaveSnapshot(ctx context.Context, snap model.Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}

	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_at, source, record_count) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.TakenAt.UnixNano(), snap.Source, len(snap.Records),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_records (
			snapshot_id, pos, record_id, kind, symbol, name, asset_type, exchange,
			quantity, reference_price, last_price, multiplier, direction,
			day_change, unrealized_pnl, leverage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("sqlite prepare records: %w", err)
	}
	defer stmt.Close()

	for i, r := range snap.Records {
		_, err := stmt.ExecContext(ctx,
			snap.ID, i, r.ID, string(r.Kind), r.Symbol, r.Name, string(r.AssetType), r.Exchange,
			r.Quantity, r.ReferencePrice, r.LastPrice, r.Multiplier, string(r.Direction),
			r.DayChange, r.UnrealizedPnL, r.Leverage,
		)
		if err != nil {
			return "", fmt.Errorf("sqlite insert record %s: %w", r.ID, err)
		}
	}

	if err := w.prune(ctx, tx); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite commit: %w", err)
	}
	if w.metrics != nil {
		w.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
	return snap.ID, nil
}

// prune keeps the newest w.keep snapshots, ordered like ListSnapshots.
func (w *Writer) prune(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY taken_at DESC, seq DESC LIMIT ?
		)`, w.keep)
	if err != nil {
		return fmt.Errorf("sqlite prune snapshots: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM snapshot_records WHERE snapshot_id NOT IN (SELECT id FROM snapshots)`)
	if err != nil {
		return fmt.Errorf("sqlite prune records: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
