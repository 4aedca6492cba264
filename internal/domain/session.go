package domain

import "time"

// Session represents a session row. A session is a UUID plus an ordered,
// gapless event log; it exists from its first appended event.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo is a session summary for listings: the session row plus whether
// an execution unit is currently running, how many events the log holds, and
// when the last event was appended.
type SessionInfo struct {
	Session
	Running     bool  `json:"running"`
	EventCount  int   `json:"event_count"`
	LastEventAt int64 `json:"last_event_at,omitempty"` // Unix milliseconds
}

// StateSnapshot is a cached result of folding events [0, Position] for a
// session. At most one definitive snapshot exists per (session, position);
// saving again overwrites.
type StateSnapshot struct {
	SessionID string    `json:"session_id"`
	Position  int       `json:"position"`
	State     []byte    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// PhaseEnteredPayload is the payload of a "phase:entered" event. Resume scans
// the log backwards for the most recent one to recover the phase to re-enter.
type PhaseEnteredPayload struct {
	Phase string `json:"phase"`
}

// SessionStartedPayload is the payload of a "session:started" event.
type SessionStartedPayload struct {
	Input string `json:"input"`
}

// SessionForkedPayload is the payload of a "session:forked" event, appended
// to a fork's log right after the copy to record where it came from.
type SessionForkedPayload struct {
	Source string `json:"sourceSessionId"`
}
