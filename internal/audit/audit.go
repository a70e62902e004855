// Package audit persists blacklist decisions and hot-reload events to a
// small SQLite-backed append-only log for the admin endpoint.
package audit

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const maxEntries = 10000

// Entry is one row in the audit log, most-recent-first when queried.
type Entry struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	Channel   string `json:"channel"`
	Detail    string `json:"detail"`
	CreatedAt int64  `json:"created_at"`
}

// Log wraps a SQLite database and exposes the audit operations.
type Log struct {
	db *sql.DB

	// maxEntriesOverride lets tests exercise the purge path without
	// inserting maxEntries rows. Zero means "use maxEntries".
	maxEntriesOverride int
}

// Open opens (or creates) the SQLite database at path and applies the
// audit_log schema. Use ":memory:" for ephemeral in-process storage.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		action     TEXT NOT NULL,
		channel    TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_log: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_log index: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// Record inserts one entry and purges entries beyond maxEntries, oldest
// first.
func (l *Log) Record(action, channel, detail string) error {
	if _, err := l.db.Exec(
		`INSERT INTO audit_log(action, channel, detail) VALUES(?, ?, ?)`,
		action, channel, detail,
	); err != nil {
		return err
	}
	limit := maxEntries
	if l.maxEntriesOverride > 0 {
		limit = l.maxEntriesOverride
	}
	_, err := l.db.Exec(
		`DELETE FROM audit_log WHERE id NOT IN (SELECT id FROM audit_log ORDER BY id DESC LIMIT ?)`,
		limit,
	)
	return err
}

// Recent returns up to limit entries, most recent first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT id, action, channel, detail, created_at FROM audit_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.Channel, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
