package service

import (
	"context"
	"fmt"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/provider"
)

// Workflow executes a session's work. Implementations append every state
// change as an event through the Runtime; they hold no state of their own.
// fromPhase is the phase to resume into ("" for a fresh session) and state
// is the fold of the log at start time.
type Workflow interface {
	Run(ctx context.Context, rt *Runtime, fromPhase string, state interface{}) error
}

// Runtime gives a workflow controlled access to its session: event appends
// (with causality links) and provider calls.
type Runtime struct {
	svc       *Service
	sessionID string
	lastID    string
}

// SessionID returns the session this runtime belongs to.
func (r *Runtime) SessionID() string { return r.sessionID }

// Append records an event caused by the previously appended one, publishes
// it, and returns it with its assigned position.
func (r *Runtime) Append(ctx context.Context, name string, payload interface{}) (domain.StoredEvent, error) {
	event, err := domain.NewEvent(name, payload, r.lastID)
	if err != nil {
		return domain.StoredEvent{}, err
	}
	stored, err := r.svc.append(ctx, r.sessionID, event)
	if err != nil {
		return domain.StoredEvent{}, err
	}
	r.lastID = event.ID
	return stored, nil
}

// CallProvider executes a provider request through the process-wide caller;
// in playback mode this replays a recording or fails.
func (r *Runtime) CallProvider(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return r.svc.caller.Call(ctx, req, nil)
}

// ChainWorkflow runs a fixed sequence of phases, one provider call per
// phase. Resuming re-enters the most recently entered phase: a pause
// mid-phase means that phase never completed.
type ChainWorkflow struct {
	Phases []string
}

// ProviderResultPayload is the payload of a "provider:result" event.
type ProviderResultPayload struct {
	Phase string          `json:"phase"`
	Text  string          `json:"text"`
	Model string          `json:"model,omitempty"`
	Usage *provider.Usage `json:"usage,omitempty"`
}

// Run executes the phase chain from fromPhase onwards.
func (w ChainWorkflow) Run(ctx context.Context, rt *Runtime, fromPhase string, state interface{}) error {
	if isCompleted(state) {
		// Resuming a finished session re-executes nothing.
		return nil
	}

	start := 0
	if fromPhase != "" {
		for i, phase := range w.Phases {
			if phase == fromPhase {
				start = i
				break
			}
		}
	}

	input := sessionInput(state)

	for _, phase := range w.Phases[start:] {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := rt.Append(ctx, domain.EventPhaseEntered, domain.PhaseEnteredPayload{Phase: phase}); err != nil {
			return err
		}

		req := provider.Request{Prompt: phasePrompt(phase, input)}
		if _, err := rt.Append(ctx, domain.EventProviderCallStarted, map[string]interface{}{
			"phase":  phase,
			"prompt": req.Prompt,
		}); err != nil {
			return err
		}

		result, err := rt.CallProvider(ctx, req)
		if err != nil {
			return fmt.Errorf("phase %q provider call: %w", phase, err)
		}

		if _, err := rt.Append(ctx, domain.EventProviderResult, ProviderResultPayload{
			Phase: phase,
			Text:  result.Text,
			Model: result.Model,
			Usage: result.Usage,
		}); err != nil {
			return err
		}
		if _, err := rt.Append(ctx, domain.EventPhaseCompleted, domain.PhaseEnteredPayload{Phase: phase}); err != nil {
			return err
		}
	}

	_, err := rt.Append(ctx, domain.EventSessionCompleted, map[string]interface{}{})
	return err
}

func phasePrompt(phase, input string) string {
	return fmt.Sprintf("Phase %q.\nTask: %s", phase, input)
}

// sessionInput pulls the original task input back out of the folded state.
func sessionInput(state interface{}) string {
	m, ok := state.(map[string]interface{})
	if !ok {
		return ""
	}
	input, _ := m["input"].(string)
	return input
}

func isCompleted(state interface{}) bool {
	m, ok := state.(map[string]interface{})
	if !ok {
		return false
	}
	done, _ := m["completed"].(bool)
	return done
}
