package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"portfolio-enginev1/internal/model"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Reader provides read-only access to stored snapshots.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema must already
// exist, which New guarantees.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// LatestSnapshot loads the most recent snapshot by TakenAt, ties broken by
// insertion order. Returns ErrNotFound when the store is empty.
func (r *Reader) LatestSnapshot(ctx context.Context) (model.Snapshot, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM snapshots
		ORDER BY taken_at DESC, seq DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("sqlite read latest snapshot: %w", err)
	}
	return r.Snapshot(ctx, id)
}

// Snapshot loads one snapshot with its records in stored order.
func (r *Reader) Snapshot(ctx context.Context, id string) (model.Snapshot, error) {
	snap := model.Snapshot{ID: id}
	var takenAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT taken_at, source FROM snapshots WHERE id = ?`, id,
	).Scan(&takenAt, &snap.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("sqlite read snapshot %s: %w", id, err)
	}
	snap.TakenAt = time.Unix(0, takenAt).UTC()

	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, kind, symbol, name, asset_type, exchange,
		       quantity, reference_price, last_price, multiplier, direction,
		       day_change, unrealized_pnl, leverage
		FROM snapshot_records
		WHERE snapshot_id = ?
		ORDER BY pos ASC
	`, id)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("sqlite query records: %w", err)
	}
	defer rows.Close()

	snap.Records = []model.Record{}
	for rows.Next() {
		var rec model.Record
		var kind, asset, dir string
		if err := rows.Scan(
			&rec.ID, &kind, &rec.Symbol, &rec.Name, &asset, &rec.Exchange,
			&rec.Quantity, &rec.ReferencePrice, &rec.LastPrice, &rec.Multiplier, &dir,
			&rec.DayChange, &rec.UnrealizedPnL, &rec.Leverage,
		); err != nil {
			return model.Snapshot{}, fmt.Errorf("sqlite scan record: %w", err)
		}
		rec.Kind = model.Kind(kind)
		rec.AssetType = model.AssetType(asset)
		rec.Direction = model.Direction(dir)
		snap.Records = append(snap.Records, rec)
	}
	return snap, rows.Err()
}

// ListSnapshots returns up to limit snapshot headers, newest first.
// limit <= 0 returns all.
func (r *Reader) ListSnapshots(ctx context.Context, limit int) ([]model.SnapshotInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, taken_at, source, record_count
		FROM snapshots
		ORDER BY taken_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list snapshots: %w", err)
	}
	defer rows.Close()

	out := []model.SnapshotInfo{}
	for rows.Next() {
		var info model.SnapshotInfo
		var takenAt int64
		if err := rows.Scan(&info.ID, &takenAt, &info.Source, &info.RecordCount); err != nil {
			return nil, fmt.Errorf("sqlite scan snapshot: %w", err)
		}
		info.TakenAt = time.Unix(0, takenAt).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
