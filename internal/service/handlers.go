package service

import (
	"encoding/json"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/tape"
)

// InitialState is the state before any event is applied.
func InitialState() map[string]interface{} {
	return map[string]interface{}{}
}

// DefaultHandlers folds the runtime's built-in events into a generic map
// state. Handlers clone the state before changing it so replay stays pure:
// the same log always folds to the same state, and no fold mutates another
// fold's result.
func DefaultHandlers() tape.Handlers {
	return tape.Handlers{
		domain.EventSessionStarted: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload domain.SessionStartedPayload
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				next["input"] = payload.Input
			}
			return next, nil
		},
		domain.EventSessionInput: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload interface{}
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				inputs, _ := next["inputs"].([]interface{})
				next["inputs"] = append(inputs, payload)
			}
			return next, nil
		},
		domain.EventPhaseEntered: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload domain.PhaseEnteredPayload
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				next["phase"] = payload.Phase
			}
			return next, nil
		},
		domain.EventPhaseCompleted: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload domain.PhaseEnteredPayload
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				completed, _ := next["completed_phases"].([]interface{})
				next["completed_phases"] = append(completed, payload.Phase)
			}
			return next, nil
		},
		// Known but contributes nothing to state; registered so replay does
		// not report it as unknown.
		domain.EventProviderCallStarted: func(_ domain.Event, state interface{}) (interface{}, []domain.Event) {
			return state, nil
		},
		domain.EventProviderResult: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload ProviderResultPayload
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				results, _ := next["results"].(map[string]interface{})
				results = cloneMap(results)
				results[payload.Phase] = payload.Text
				next["results"] = results
			}
			return next, nil
		},
		domain.EventSessionForked: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			var payload domain.SessionForkedPayload
			if err := json.Unmarshal(evt.Payload, &payload); err == nil {
				next["forked_from"] = payload.Source
			}
			return next, nil
		},
		domain.EventSessionCompleted: func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			next := cloneState(state)
			next["completed"] = true
			return next, nil
		},
	}
}

func cloneState(state interface{}) map[string]interface{} {
	m, ok := state.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return cloneMap(m)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
