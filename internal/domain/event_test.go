package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/replaykit/replayd/internal/errs"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent(EventSessionInput, map[string]string{"text": "hi"}, "")
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if _, err := uuid.Parse(evt.ID); err != nil {
		t.Fatalf("id is not a uuid: %q", evt.ID)
	}
	if evt.Timestamp == 0 {
		t.Fatal("timestamp not set")
	}
	if string(evt.Payload) != `{"text":"hi"}` {
		t.Fatalf("unexpected payload: %s", evt.Payload)
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestUnmarshalNumericTimestamp(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"name":"session:input","timestamp":1756500000000}`), &evt); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if evt.Timestamp != 1756500000000 {
		t.Fatalf("timestamp = %d", evt.Timestamp)
	}
}

func TestUnmarshalISOTimestamp(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"name":"session:input","timestamp":"2026-08-30T12:00:00Z"}`), &evt); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).UnixMilli()
	if evt.Timestamp != want {
		t.Fatalf("timestamp = %d, want %d", evt.Timestamp, want)
	}
}

func TestUnmarshalBadTimestamp(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"name":"x","timestamp":"yesterday"}`), &evt); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
	if err := json.Unmarshal([]byte(`{"name":"x","timestamp":true}`), &evt); err == nil {
		t.Fatal("expected error for boolean timestamp")
	}
}

func TestUnmarshalMissingTimestamp(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"name":"session:input"}`), &evt); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if evt.Timestamp != 0 {
		t.Fatalf("timestamp = %d, want 0", evt.Timestamp)
	}
}

func TestValidate(t *testing.T) {
	id := uuid.New().String()

	cases := []struct {
		name string
		evt  Event
		ok   bool
	}{
		{"valid", Event{ID: id, Name: "session:input"}, true},
		{"missing name", Event{ID: id}, false},
		{"missing id", Event{Name: "session:input"}, false},
		{"bad id", Event{ID: "nope", Name: "session:input"}, false},
		{"bad causedBy", Event{ID: id, Name: "session:input", CausedBy: "nope"}, false},
		{"valid causedBy", Event{ID: id, Name: "session:input", CausedBy: uuid.New().String()}, true},
	}
	for _, tc := range cases {
		err := tc.evt.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			if errs.GetCode(err) != errs.CodeValidation {
				t.Fatalf("%s: expected validation code, got %v", tc.name, errs.GetCode(err))
			}
		}
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	evt := Event{Name: "session:input"}
	if err := evt.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if evt.ID == "" || evt.Timestamp == 0 {
		t.Fatalf("defaults not filled: %+v", evt)
	}

	fixed := Event{ID: uuid.New().String(), Name: "session:input", Timestamp: 42}
	keep := fixed
	if err := fixed.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if fixed.ID != keep.ID || fixed.Timestamp != 42 {
		t.Fatal("Normalize overwrote provided fields")
	}
}

func TestStoredEventRoundTrip(t *testing.T) {
	evt, err := NewEvent(EventPhaseEntered, PhaseEnteredPayload{Phase: "plan"}, "")
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	stored := StoredEvent{Event: evt, SessionID: "s1", Position: 7}

	raw, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got StoredEvent
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.SessionID != "s1" || got.Position != 7 || got.ID != evt.ID {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}
