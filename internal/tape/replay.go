// Package tape implements event replay: state at any position is a pure fold
// over the event log, with VCR-style navigation on top.
package tape

import (
	"log"

	"github.com/replaykit/replayd/internal/domain"
)

// Handler computes the next state for one event. Handlers must be pure: same
// event and state always produce the same result. Emitted events are
// side-channel output captured during live execution; replay never re-applies
// them because they are already present in the log.
type Handler func(event domain.Event, state interface{}) (interface{}, []domain.Event)

// Handlers maps event names to handlers. Exactly one handler per name;
// unregistered names are not errors.
type Handlers map[string]Handler

// ReplayOptions configures event replay behavior.
type ReplayOptions struct {
	// Initial is the state before any event is applied.
	Initial interface{}
	// OnUnknown is called for events with no registered handler. Nil means
	// the default warning log; use NopUnknown to suppress.
	OnUnknown func(event domain.Event)
}

// NopUnknown suppresses unknown-event reporting.
func NopUnknown(domain.Event) {}

func (o ReplayOptions) onUnknown() func(domain.Event) {
	if o.OnUnknown != nil {
		return o.OnUnknown
	}
	return func(evt domain.Event) {
		log.Printf("WARN: no handler registered for event %q, skipping", evt.Name)
	}
}

// ComputeState folds events[0..toPosition] through the handlers and returns
// the resulting state. toPosition is clamped into [-1, len(events)-1]; -1
// yields the initial state unchanged. Events without a handler are skipped
// and reported through OnUnknown; replay never fails on unknown names.
func ComputeState(events []domain.Event, handlers Handlers, opts ReplayOptions, toPosition int) interface{} {
	return ComputeStateFrom(events, handlers, opts, -1, opts.Initial, toPosition)
}

// ComputeStateFrom folds events[afterPosition+1..toPosition] seeded with the
// given state. Seeding with a snapshot's state at afterPosition is a pure
// optimization: the result is identical to folding from position 0.
func ComputeStateFrom(events []domain.Event, handlers Handlers, opts ReplayOptions, afterPosition int, seed interface{}, toPosition int) interface{} {
	toPosition = clamp(toPosition, -1, len(events)-1)
	state := seed
	unknown := opts.onUnknown()
	for i := afterPosition + 1; i <= toPosition; i++ {
		handler, ok := handlers[events[i].Name]
		if !ok {
			unknown(events[i])
			continue
		}
		state, _ = handler(events[i], state)
	}
	return state
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
