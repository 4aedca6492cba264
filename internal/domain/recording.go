package domain

import (
	"encoding/json"
	"time"
)

// RecordingMeta describes a provider capture at start time.
type RecordingMeta struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

// Recording is a finalized provider capture: the ordered stream events and
// the terminal result for one request hash.
type Recording struct {
	Hash       string            `json:"hash"`
	Prompt     string            `json:"prompt"`
	Provider   string            `json:"provider"`
	Events     []json.RawMessage `json:"events"`
	Result     json.RawMessage   `json:"result"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// RecordingInfo is a catalog entry for a finalized recording.
type RecordingInfo struct {
	Hash       string    `json:"hash"`
	Prompt     string    `json:"prompt"`
	Provider   string    `json:"provider"`
	EventCount int       `json:"event_count"`
	RecordedAt time.Time `json:"recorded_at"`
}
