// Package history keeps an optional sqlite log of every notified event,
// backing the /history command and the daily digest counters.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ghtrack/internal/github"
	logx "ghtrack/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT NOT NULL,
	dest        TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	actor       TEXT NOT NULL,
	repo        TEXT NOT NULL,
	summary     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_dest_at ON events(dest, at DESC);
`

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Entry is one recorded notification.
type Entry struct {
	At      time.Time
	TaskID  string
	EventID string
	Type    string
	Actor   string
	Repo    string
	Summary string
}

// Store records emitted events. A nil *Store is a valid disabled store:
// every method is a no-op, so callers never need to branch on enablement.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent implements tracker.EventRecorder. Failures are logged and
// swallowed; history is never allowed to break notification delivery.
func (s *Store) RecordEvent(dest, taskID string, ev github.Event, summary string) {
	if s == nil || s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(at, dest, task_id, event_id, event_type, actor, repo, summary)
		 VALUES(?,?,?,?,?,?,?,?)`,
		time.Now().UTC().Format(time.RFC3339Nano), dest, taskID,
		ev.ID, ev.Type, ev.Actor.Login, ev.Repo.Name, summary,
	)
	if err != nil {
		s.log.Warn("history insert failed", logx.Err(err))
	}
}

// Recent returns the latest n entries for one destination, newest first.
func (s *Store) Recent(ctx context.Context, dest string, n int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, task_id, event_id, event_type, actor, repo, summary
		 FROM events WHERE dest = ? ORDER BY id DESC LIMIT ?`, dest, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&at, &e.TaskID, &e.EventID, &e.Type, &e.Actor, &e.Repo, &e.Summary); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSince returns how many events were recorded for dest after t.
func (s *Store) CountSince(ctx context.Context, dest string, t time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE dest = ? AND at > ?`,
		dest, t.UTC().Format(time.RFC3339Nano)).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return n, nil
}
