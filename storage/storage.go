// Package storage keeps a SQLite copy of the collected dataset and a history
// of collection runs.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database connection and provides storage operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases and transactions simple.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		subreddit TEXT NOT NULL,
		requested_count INTEGER NOT NULL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		threads INTEGER NOT NULL DEFAULT 0,
		entries INTEGER NOT NULL DEFAULT 0,
		calls INTEGER NOT NULL DEFAULT 0,
		outages INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		rank INTEGER NOT NULL,
		title TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		upvote_ratio REAL NOT NULL DEFAULT 0,
		url TEXT NOT NULL,
		author TEXT,
		num_comments INTEGER NOT NULL DEFAULT 0,
		selftext TEXT NOT NULL,
		article_text TEXT
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		parent_id TEXT,
		position INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		body TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		ups INTEGER NOT NULL DEFAULT 0,
		downs INTEGER NOT NULL DEFAULT 0,
		num_reports INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_comments_thread ON comments(thread_id, position);

	CREATE TABLE IF NOT EXISTS entities (
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		comment_id TEXT,
		unit TEXT NOT NULL,
		ord INTEGER NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		salience REAL NOT NULL,
		sentiment_score REAL NOT NULL,
		sentiment_magnitude REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
	`

	_, err := db.conn.Exec(schema)
	return err
}
