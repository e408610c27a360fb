package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createPlaysTable = `CREATE TABLE IF NOT EXISTS plays (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	track_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	artwork_url TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL
)`

// PlayLog appends started tracks to a SQLite database.
type PlayLog struct {
	db *sql.DB
}

// OpenPlayLog opens (and creates if needed) the play log at path.
func OpenPlayLog(path string) (*PlayLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open play log: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createPlaysTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create plays table: %w", err)
	}
	return &PlayLog{db: db}, nil
}

// Append stores one entry.
func (l *PlayLog) Append(ctx context.Context, entry Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO plays(identity, track_id, name, artist, artwork_url, started_at) VALUES(?, ?, ?, ?, ?, ?)`,
		entry.Identity, entry.Track.ID, entry.Track.Name, entry.Track.Artist, entry.Track.ArtworkURL,
		entry.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert play: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, oldest first, ready for History.Load.
// An empty identity matches every identity.
func (l *PlayLog) Recent(ctx context.Context, identity string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT identity, track_id, name, artist, artwork_url, started_at FROM (
			SELECT * FROM plays WHERE ? = '' OR identity = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		identity, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			startedAt int64
		)
		if err := rows.Scan(&entry.Identity, &entry.Track.ID, &entry.Track.Name,
			&entry.Track.Artist, &entry.Track.ArtworkURL, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		entry.StartedAt = time.UnixMilli(startedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (l *PlayLog) Close() error {
	return l.db.Close()
}
