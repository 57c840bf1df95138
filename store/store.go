// Package store persists snapshots and diff batches in SQLite. A Store is
// also a sink.Sink, so it can sit behind the capture router.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/replay/dbopen"
	"github.com/hazyhaar/replay/diff"
)

// Store is the replay database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// SnapshotInfo describes a stored snapshot without its tree.
type SnapshotInfo struct {
	ID            string `json:"id"`
	PageID        string `json:"page_id"`
	URL           string `json:"url,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	ViewID        string `json:"view_id,omitempty"`
	NodeCount     int    `json:"node_count"`
	Timestamp     int64  `json:"timestamp"`
}

// SaveSnapshot stores snap and makes it the latest one of its page.
func (s *Store) SaveSnapshot(ctx context.Context, snap diff.Snapshot) error {
	tree, err := json.Marshal(snap.Tree)
	if err != nil {
		return fmt.Errorf("store: marshal tree: %w", err)
	}
	rum := snap.Tree.RUMContext
	now := time.Now().UnixMilli()

	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots
				(id, page_id, url, application_id, session_id, view_id, node_count, taken_at, tree, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			snap.ID, snap.PageID, snap.URL, rum.ApplicationID, rum.SessionID, rum.ViewID,
			snap.Tree.Count(), snap.Timestamp, string(tree), now,
		); err != nil {
			return fmt.Errorf("store: insert snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages (page_id, snapshot_id, updated_at) VALUES (?,?,?)
			ON CONFLICT(page_id) DO UPDATE SET snapshot_id = excluded.snapshot_id, updated_at = excluded.updated_at`,
			snap.PageID, snap.ID, now,
		); err != nil {
			return fmt.Errorf("store: update page: %w", err)
		}
		return nil
	})
}

// SaveBatch stores a batch. Its snapshot must already be stored.
func (s *Store) SaveBatch(ctx context.Context, b diff.Batch) error {
	records, err := json.Marshal(b.Records)
	if err != nil {
		return fmt.Errorf("store: marshal records: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO batches (id, snapshot_id, page_id, seq, taken_at, records, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.SnapshotRef, b.PageID, b.Seq, b.Timestamp, string(records), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert batch: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot with id, or nil when there is none.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*diff.Snapshot, error) {
	return s.scanSnapshot(s.DB.QueryRowContext(ctx, `
		SELECT id, page_id, url, taken_at, tree FROM snapshots WHERE id = ?`, id))
}

// LatestSnapshot returns the most recent snapshot of pageID, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, pageID string) (*diff.Snapshot, error) {
	return s.scanSnapshot(s.DB.QueryRowContext(ctx, `
		SELECT s.id, s.page_id, s.url, s.taken_at, s.tree
		FROM pages p JOIN snapshots s ON s.id = p.snapshot_id
		WHERE p.page_id = ?`, pageID))
}

func (s *Store) scanSnapshot(row *sql.Row) (*diff.Snapshot, error) {
	var snap diff.Snapshot
	var tree string
	err := row.Scan(&snap.ID, &snap.PageID, &snap.URL, &snap.Timestamp, &tree)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(tree), &snap.Tree); err != nil {
		return nil, fmt.Errorf("store: decode tree %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// ListSnapshots returns the snapshots of a RUM session, newest first. An
// empty sessionID lists all snapshots. limit <= 0 means 50.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, url, application_id, session_id, view_id, node_count, taken_at
		FROM snapshots
		WHERE ? = '' OR session_id = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var i SnapshotInfo
		if err := rows.Scan(&i.ID, &i.PageID, &i.URL, &i.ApplicationID, &i.SessionID, &i.ViewID, &i.NodeCount, &i.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// BatchesSince returns the batches recorded on top of snapshotID, in seq
// order.
func (s *Store) BatchesSince(ctx context.Context, snapshotID string) ([]diff.Batch, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, snapshot_id, page_id, seq, taken_at, records
		FROM batches WHERE snapshot_id = ? ORDER BY seq`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}
	defer rows.Close()

	var out []diff.Batch
	for rows.Next() {
		var b diff.Batch
		var records string
		if err := rows.Scan(&b.ID, &b.SnapshotRef, &b.PageID, &b.Seq, &b.Timestamp, &records); err != nil {
			return nil, fmt.Errorf("store: scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(records), &b.Records); err != nil {
			return nil, fmt.Errorf("store: decode batch %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PruneBefore deletes snapshots taken before t, with their batches. The
// latest snapshot of each page is kept.
func (s *Store) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE taken_at < ? AND id NOT IN (SELECT snapshot_id FROM pages)`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

// SendSnapshot implements sink.Sink.
func (s *Store) SendSnapshot(ctx context.Context, snap diff.Snapshot) error {
	return s.SaveSnapshot(ctx, snap)
}

// SendBatch implements sink.Sink.
func (s *Store) SendBatch(ctx context.Context, b diff.Batch) error {
	return s.SaveBatch(ctx, b)
}
