// Package state persists the per-segment cut state machine:
// pending → cutting → {cut, failed}. The store lets a re-run skip segments
// that are already cut and lets the export stage enumerate only the segments
// that made it through.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusCutting Status = "cutting"
	StatusCut     Status = "cut"
	StatusFailed  Status = "failed"
)

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS segments (
	video_id   TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (video_id, idx)
);
`

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) set(ctx context.Context, videoID string, idx int, status Status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (video_id, idx, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (video_id, idx) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, videoID, idx, string(status), errMsg, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) MarkCutting(ctx context.Context, videoID string, idx int) error {
	return s.set(ctx, videoID, idx, StatusCutting, "")
}

func (s *Store) MarkCut(ctx context.Context, videoID string, idx int) error {
	return s.set(ctx, videoID, idx, StatusCut, "")
}

// MarkFailed records a terminal failure for one segment. Sibling segments are
// unaffected.
func (s *Store) MarkFailed(ctx context.Context, videoID string, idx int, errMsg string) error {
	return s.set(ctx, videoID, idx, StatusFailed, errMsg)
}

func (s *Store) Get(ctx context.Context, videoID string, idx int) (Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM segments WHERE video_id = ? AND idx = ?`,
		videoID, idx,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return StatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

// ListByStatus returns the segment indexes of one video in the given status,
// in index order.
func (s *Store) ListByStatus(ctx context.Context, videoID string, status Status) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx FROM segments WHERE video_id = ? AND status = ? ORDER BY idx`,
		videoID, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idxs []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

// Reset clears all segment rows for a video. Used with --force to re-cut
// from scratch.
func (s *Store) Reset(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE video_id = ?`, videoID)
	return err
}
