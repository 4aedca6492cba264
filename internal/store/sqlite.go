// Package store provides SQLite-backed persistence for sessions, events,
// state snapshots, and provider recordings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
)

// SQLiteStore implements durable storage using SQLite. It assumes a single
// writer per session: the (session_id, position) primary key is the only
// concurrency control, and conflicting concurrent writers to one session are
// a caller contract violation, not something the store arbitrates.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			payload TEXT,
			timestamp INTEGER NOT NULL,
			caused_by TEXT,
			PRIMARY KEY (session_id, position),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			state_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, position),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS recording_sessions (
			recording_id TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			prompt TEXT,
			provider TEXT,
			result_json TEXT,
			finalized INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recording_hash ON recording_sessions(request_hash, finalized)`,
		`CREATE TABLE IF NOT EXISTS recording_events (
			recording_id TEXT NOT NULL,
			event_index INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (recording_id, event_index)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEvent appends an event to a session's log and returns the assigned
// position. The session row is created on first append; row creation and the
// event insert happen in one transaction so concurrent first-appends cannot
// leave a session without events.
func (s *SQLiteStore) AppendEvent(ctx context.Context, sessionID string, event domain.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "begin append transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`,
		sessionID, time.Now().UTC()); err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "ensure session row", err)
	}

	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM events WHERE session_id = ?`,
		sessionID).Scan(&position); err != nil {
		return 0, errs.Wrap(errs.CodeStoreRead, "compute next position", err)
	}

	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	var causedBy sql.NullString
	if event.CausedBy != "" {
		causedBy = sql.NullString{String: event.CausedBy, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, position, name, payload, timestamp, caused_by) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, sessionID, position, event.Name, payload, event.Timestamp, causedBy); err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "insert event", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "commit append", err)
	}
	return position, nil
}

// GetEvents returns a session's full event log in position order.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string) ([]domain.StoredEvent, error) {
	return s.GetEventsFrom(ctx, sessionID, 0)
}

// GetEventsFrom returns events with position >= from, in position order.
func (s *SQLiteStore) GetEventsFrom(ctx context.Context, sessionID string, from int) ([]domain.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, session_id, position, name, payload, timestamp, caused_by
		 FROM events WHERE session_id = ? AND position >= ? ORDER BY position ASC`,
		sessionID, from)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query events", err)
	}
	defer rows.Close()

	var events []domain.StoredEvent
	for rows.Next() {
		var evt domain.StoredEvent
		var payload, causedBy sql.NullString
		if err := rows.Scan(&evt.ID, &evt.SessionID, &evt.Position, &evt.Name, &payload, &evt.Timestamp, &causedBy); err != nil {
			return nil, errs.Wrap(errs.CodeStoreRead, "scan event", err)
		}
		if payload.Valid && payload.String != "" {
			evt.Payload = []byte(payload.String)
		}
		if causedBy.Valid {
			evt.CausedBy = causedBy.String
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "iterate events", err)
	}
	return events, nil
}

// SessionExists reports whether a session row exists.
func (s *SQLiteStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.CodeStoreRead, "query session", err)
	}
	return true, nil
}

// ListSessions lists sessions most-recently-created first, with event counts
// and last-event timestamps.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.created_at, COUNT(e.position), COALESCE(MAX(e.timestamp), 0)
		 FROM sessions s LEFT JOIN events e ON e.session_id = s.session_id
		 GROUP BY s.session_id
		 ORDER BY s.created_at DESC, s.session_id DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query sessions", err)
	}
	defer rows.Close()

	var sessions []domain.SessionInfo
	for rows.Next() {
		var info domain.SessionInfo
		if err := rows.Scan(&info.ID, &info.CreatedAt, &info.EventCount, &info.LastEventAt); err != nil {
			return nil, errs.Wrap(errs.CodeStoreRead, "scan session", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "iterate sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes a session's events, snapshots, and its session row.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "begin delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "delete events", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "delete snapshots", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "delete session", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "commit delete", err)
	}
	return nil
}

// CopySession copies every event of src, positions preserved, into a new
// session dst. Returns the number of events copied. The copy is a
// point-in-time snapshot: the two logs are independent afterwards.
func (s *SQLiteStore) CopySession(ctx context.Context, src, dst string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "begin copy transaction", err)
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE session_id = ?`, src).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return 0, errs.New(errs.CodeSessionNotFound, "session %s not found", src)
		}
		return 0, errs.Wrap(errs.CodeStoreRead, "query source session", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
		dst, time.Now().UTC()); err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "insert forked session", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, position, name, payload, timestamp, caused_by)
		 SELECT event_id, ?, position, name, payload, timestamp, caused_by
		 FROM events WHERE session_id = ?`,
		dst, src)
	if err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "copy events", err)
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "count copied events", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.CodeStoreWrite, "commit copy", err)
	}
	return int(copied), nil
}

// SaveSnapshot stores a state snapshot, overwriting any existing snapshot at
// the same (session, position).
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap domain.StateSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (session_id, position, state_json, created_at) VALUES (?, ?, ?, ?)`,
		snap.SessionID, snap.Position, string(snap.State), time.Now().UTC())
	if err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "save snapshot", err)
	}
	return nil
}

// NearestSnapshot returns the snapshot with the greatest position <= maxPosition,
// or nil if none exists.
func (s *SQLiteStore) NearestSnapshot(ctx context.Context, sessionID string, maxPosition int) (*domain.StateSnapshot, error) {
	var snap domain.StateSnapshot
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, position, state_json, created_at FROM snapshots
		 WHERE session_id = ? AND position <= ? ORDER BY position DESC LIMIT 1`,
		sessionID, maxPosition).Scan(&snap.SessionID, &snap.Position, &state, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query snapshot", err)
	}
	snap.State = []byte(state)
	return &snap, nil
}
