package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/replaykit/replayd/internal/errs"
)

// Event is an immutable entry in a session's event log.
type Event struct {
	// ID is an opaque unique identifier (UUID).
	ID string `json:"id"`
	// Name identifies the kind of event, colon-namespaced ("phase:entered").
	Name string `json:"name"`
	// Payload holds event-specific data as JSON.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is when the event occurred, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// CausedBy optionally points at the event that triggered this one.
	// It is advisory: cycles are possible and must not be assumed absent.
	CausedBy string `json:"causedBy,omitempty"`
}

// StoredEvent is an event together with its position in a session's log.
// Positions are gapless integers starting at 0, assigned by the store.
type StoredEvent struct {
	Event
	SessionID string `json:"sessionId"`
	Position  int    `json:"position"`
}

// UnmarshalJSON decodes the embedded event plus the position fields, which
// the promoted Event.UnmarshalJSON would otherwise swallow.
func (e *StoredEvent) UnmarshalJSON(data []byte) error {
	if err := e.Event.UnmarshalJSON(data); err != nil {
		return err
	}
	var w struct {
		SessionID string `json:"sessionId"`
		Position  int    `json:"position"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.SessionID = w.SessionID
	e.Position = w.Position
	return nil
}

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(name string, payload interface{}, causedBy string) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errs.Wrap(errs.CodeValidation, "marshal event payload", err)
	}
	return Event{
		ID:        uuid.New().String(),
		Name:      name,
		Payload:   body,
		Timestamp: time.Now().UnixMilli(),
		CausedBy:  causedBy,
	}, nil
}

// eventWire mirrors Event but defers timestamp decoding, which must accept
// either a numeric millisecond value or an ISO-8601 string.
type eventWire struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp json.RawMessage `json:"timestamp"`
	CausedBy  string          `json:"causedBy"`
}

// UnmarshalJSON decodes the wire format, normalizing timestamps to Unix
// milliseconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Name = w.Name
	e.Payload = w.Payload
	e.CausedBy = w.CausedBy
	e.Timestamp = 0
	if len(w.Timestamp) == 0 || string(w.Timestamp) == "null" {
		return nil
	}
	ts, err := decodeTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = ts
	return nil
}

func decodeTimestamp(raw json.RawMessage) (int64, error) {
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return ms, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int64(f), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("timestamp must be a number or string: %s", raw)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp is not valid ISO-8601: %q", s)
	}
	return t.UnixMilli(), nil
}

// Validate checks that the event is well-formed. Missing IDs and timestamps
// are not defaulted here; callers that accept partial events fill them first.
func (e Event) Validate() error {
	if e.Name == "" {
		return errs.New(errs.CodeValidation, "event name is required")
	}
	if e.ID == "" {
		return errs.New(errs.CodeValidation, "event id is required")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return errs.New(errs.CodeValidation, "event id %q is not a valid uuid", e.ID)
	}
	if e.CausedBy != "" {
		if _, err := uuid.Parse(e.CausedBy); err != nil {
			return errs.New(errs.CodeValidation, "causedBy %q is not a valid uuid", e.CausedBy)
		}
	}
	return nil
}

// Normalize fills in a missing ID and timestamp, then validates. Used for
// caller-supplied events on the input endpoint.
func (e *Event) Normalize() error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	return e.Validate()
}
