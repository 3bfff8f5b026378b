// Package store persists capture records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a capture id does not exist.
var ErrNotFound = errors.New("store: capture not found")

// Capture is one transcribed snippet anchored to a playback moment.
// Immutable after creation except for Notes.
type Capture struct {
	ID            string
	SourceKey     string
	AnchorMs      int64
	WindowStartMs int64
	WindowEndMs   int64
	Transcription string
	Notes         string
	CreatedAt     time.Time
}

// Store provides access to the earmark SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id            TEXT PRIMARY KEY,
	sourceKey     TEXT NOT NULL,
	anchorMs      INTEGER NOT NULL,
	windowStartMs INTEGER NOT NULL,
	windowEndMs   INTEGER NOT NULL,
	transcription TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	createdAtMs   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_source ON captures(sourceKey, anchorMs);
`

// Open opens (creating if needed) the database at path with WAL enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertCapture writes a new capture record. The record is durable once
// this returns nil.
func (s *Store) InsertCapture(ctx context.Context, c Capture) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures
			(id, sourceKey, anchorMs, windowStartMs, windowEndMs, transcription, notes, createdAtMs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SourceKey, c.AnchorMs, c.WindowStartMs, c.WindowEndMs,
		c.Transcription, c.Notes, c.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// GetCapture returns the capture with the given id, or ErrNotFound.
func (s *Store) GetCapture(ctx context.Context, id string) (Capture, error) {
	var c Capture
	var createdAtMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sourceKey, anchorMs, windowStartMs, windowEndMs, transcription, notes, createdAtMs
		FROM captures
		WHERE id = ?
	`, id).Scan(&c.ID, &c.SourceKey, &c.AnchorMs, &c.WindowStartMs,
		&c.WindowEndMs, &c.Transcription, &c.Notes, &createdAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Capture{}, ErrNotFound
	}
	if err != nil {
		return Capture{}, fmt.Errorf("get capture: %w", err)
	}
	c.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return c, nil
}

// ListForSource returns all captures for a source ordered by anchor
// position. Ties break on creation time then id so the ordering is stable.
func (s *Store) ListForSource(ctx context.Context, sourceKey string) ([]Capture, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sourceKey, anchorMs, windowStartMs, windowEndMs, transcription, notes, createdAtMs
		FROM captures
		WHERE sourceKey = ?
		ORDER BY anchorMs ASC, createdAtMs ASC, id ASC
	`, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		var c Capture
		var createdAtMs int64
		if err := rows.Scan(&c.ID, &c.SourceKey, &c.AnchorMs, &c.WindowStartMs,
			&c.WindowEndMs, &c.Transcription, &c.Notes, &createdAtMs); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// UpdateNotes replaces the notes on an existing capture. The capture edit
// flow is the only writer of this column.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE captures SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCapture removes a capture record.
func (s *Store) DeleteCapture(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
