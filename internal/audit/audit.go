// Package audit keeps a local trail of vault actions in a sqlite
// database next to the client.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Statuses recorded for an action.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Recorded action names.
const (
	ActionLogin      = "LOGIN"
	ActionLogout     = "LOGOUT"
	ActionAdd        = "ADD"
	ActionEdit       = "EDIT"
	ActionDelete     = "DELETE"
	ActionResetVault = "RESET_VAULT"
	ActionForceReset = "FORCE_RESET"
)

// Entry is one recorded action.
type Entry struct {
	Time   time.Time
	Action string
	Site   string
	Status string
	Note   string
}

const schema = `CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TIMESTAMP NOT NULL,
	action TEXT NOT NULL,
	site TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
)`

// Recorder writes and reads the audit trail.
type Recorder struct {
	db *sql.DB
}

// Open opens the audit database at path, creating the schema if needed.
func Open(path string) (*Recorder, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// Single writer avoids "database is locked" errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// newRecorder wraps an existing handle; used by tests.
func newRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one action to the trail.
func (r *Recorder) Record(ctx context.Context, action, site, status, note string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (at, action, site, status, note) VALUES (?, ?, ?, ?, ?)",
		time.Now().UTC(), action, site, status, note,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT at, action, site, status, note FROM audit_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Time, &e.Action, &e.Site, &e.Status, &e.Note); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
