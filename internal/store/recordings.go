package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
)

// StartRecording opens a new in-progress capture for a request hash and
// returns its recording id. At most one in-progress capture exists per hash:
// any stale in-progress rows for the same hash are discarded first.
func (s *SQLiteStore) StartRecording(ctx context.Context, hash string, meta domain.RecordingMeta) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errs.Wrap(errs.CodeStoreWrite, "begin recording transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_events WHERE recording_id IN
		 (SELECT recording_id FROM recording_sessions WHERE request_hash = ? AND finalized = 0)`,
		hash); err != nil {
		return "", errs.Wrap(errs.CodeStoreDelete, "discard stale recording events", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_sessions WHERE request_hash = ? AND finalized = 0`,
		hash); err != nil {
		return "", errs.Wrap(errs.CodeStoreDelete, "discard stale recording", err)
	}

	recordingID := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recording_sessions (recording_id, request_hash, prompt, provider, finalized, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		recordingID, hash, meta.Prompt, meta.Provider, time.Now().UTC()); err != nil {
		return "", errs.Wrap(errs.CodeStoreWrite, "insert recording", err)
	}

	if err := tx.Commit(); err != nil {
		return "", errs.Wrap(errs.CodeStoreWrite, "commit recording start", err)
	}
	return recordingID, nil
}

// AppendRecordingEvent persists one streamed provider event at the next
// sequential index for the recording. Each append is durable on return, so a
// crash mid-stream loses at most the unflushed tail.
func (s *SQLiteStore) AppendRecordingEvent(ctx context.Context, recordingID string, payload json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "begin recording append", err)
	}
	defer tx.Rollback()

	var index int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(event_index) + 1, 0) FROM recording_events WHERE recording_id = ?`,
		recordingID).Scan(&index); err != nil {
		return errs.Wrap(errs.CodeStoreRead, "compute next event index", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recording_events (recording_id, event_index, payload) VALUES (?, ?, ?)`,
		recordingID, index, string(payload)); err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "insert recording event", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "commit recording append", err)
	}
	return nil
}

// FinalizeRecording attaches the terminal result and marks the capture
// complete. Any previously finalized recording for the same hash is replaced,
// keeping one definitive entry per hash.
func (s *SQLiteStore) FinalizeRecording(ctx context.Context, recordingID string, result json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "begin finalize transaction", err)
	}
	defer tx.Rollback()

	var hash string
	err = tx.QueryRowContext(ctx,
		`SELECT request_hash FROM recording_sessions WHERE recording_id = ? AND finalized = 0`,
		recordingID).Scan(&hash)
	if err == sql.ErrNoRows {
		return errs.New(errs.CodeRecordingNotFound, "no in-progress recording %s", recordingID)
	}
	if err != nil {
		return errs.Wrap(errs.CodeStoreRead, "query recording", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_events WHERE recording_id IN
		 (SELECT recording_id FROM recording_sessions WHERE request_hash = ? AND finalized = 1)`,
		hash); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "replace finalized recording events", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_sessions WHERE request_hash = ? AND finalized = 1`,
		hash); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "replace finalized recording", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE recording_sessions SET result_json = ?, finalized = 1 WHERE recording_id = ?`,
		string(result), recordingID); err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "finalize recording", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeStoreWrite, "commit finalize", err)
	}
	return nil
}

// LoadRecording returns the finalized recording for a hash, or nil if none
// exists. In-progress captures are never returned.
func (s *SQLiteStore) LoadRecording(ctx context.Context, hash string) (*domain.Recording, error) {
	var rec domain.Recording
	var recordingID string
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT recording_id, request_hash, prompt, provider, result_json, created_at
		 FROM recording_sessions WHERE request_hash = ? AND finalized = 1`,
		hash).Scan(&recordingID, &rec.Hash, &rec.Prompt, &rec.Provider, &result, &rec.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query recording", err)
	}
	if result.Valid {
		rec.Result = json.RawMessage(result.String)
	}

	events, err := s.GetRecordingEvents(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	rec.Events = events
	return &rec, nil
}

// GetRecordingEvents returns the stream events of a recording in index order.
// Works for in-progress captures too, which is what makes partially written
// recordings inspectable after a crash.
func (s *SQLiteStore) GetRecordingEvents(ctx context.Context, recordingID string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM recording_events WHERE recording_id = ? ORDER BY event_index ASC`,
		recordingID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query recording events", err)
	}
	defer rows.Close()

	var events []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errs.Wrap(errs.CodeStoreRead, "scan recording event", err)
		}
		events = append(events, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "iterate recording events", err)
	}
	return events, nil
}

// ListRecordings lists finalized recordings, most recent first.
func (s *SQLiteStore) ListRecordings(ctx context.Context) ([]domain.RecordingInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.request_hash, r.prompt, r.provider, COUNT(e.event_index), r.created_at
		 FROM recording_sessions r LEFT JOIN recording_events e ON e.recording_id = r.recording_id
		 WHERE r.finalized = 1
		 GROUP BY r.recording_id
		 ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "query recordings", err)
	}
	defer rows.Close()

	var infos []domain.RecordingInfo
	for rows.Next() {
		var info domain.RecordingInfo
		if err := rows.Scan(&info.Hash, &info.Prompt, &info.Provider, &info.EventCount, &info.RecordedAt); err != nil {
			return nil, errs.Wrap(errs.CodeStoreRead, "scan recording", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeStoreRead, "iterate recordings", err)
	}
	return infos, nil
}

// DeleteRecording removes all captures for a hash, finalized or not.
func (s *SQLiteStore) DeleteRecording(ctx context.Context, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "begin recording delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_events WHERE recording_id IN
		 (SELECT recording_id FROM recording_sessions WHERE request_hash = ?)`,
		hash); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "delete recording events", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recording_sessions WHERE request_hash = ?`, hash); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "delete recording", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeStoreDelete, "commit recording delete", err)
	}
	return nil
}
