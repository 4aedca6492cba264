// Package domain defines the core domain models for the session runtime.
package domain

// EventName identifies the kind of an event. Names are colon-namespaced,
// e.g. "phase:entered".
type EventName = string

// Session lifecycle events.
const (
	EventSessionStarted   EventName = "session:started"
	EventSessionCompleted EventName = "session:completed"
	EventSessionForked    EventName = "session:forked"
	EventSessionInput     EventName = "session:input"
)

// Workflow phase events.
const (
	EventPhaseEntered   EventName = "phase:entered"
	EventPhaseCompleted EventName = "phase:completed"
)

// Provider call events.
const (
	EventProviderCallStarted EventName = "provider:call_started"
	EventProviderResult      EventName = "provider:result"
)

// ProviderMode selects between live provider calls and deterministic playback.
// It is a single process-wide value fixed at startup.
type ProviderMode string

const (
	// ProviderModeLive calls the real provider and records responses.
	ProviderModeLive ProviderMode = "live"
	// ProviderModePlayback replays recorded responses and never calls live.
	ProviderModePlayback ProviderMode = "playback"
)

// IsValid reports whether the provider mode is usable.
func (m ProviderMode) IsValid() bool {
	return m == ProviderModeLive || m == ProviderModePlayback
}
