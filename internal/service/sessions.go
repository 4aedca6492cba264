package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
	"github.com/replaykit/replayd/internal/policy"
	"github.com/replaykit/replayd/internal/tape"
)

// CreateSession allocates a session, appends its "session:started" event,
// and begins executing the workflow as an independent cancellable unit.
func (s *Service) CreateSession(ctx context.Context, input string) (string, error) {
	sessionID := uuid.New().String()

	event, err := domain.NewEvent(domain.EventSessionStarted, domain.SessionStartedPayload{Input: input}, "")
	if err != nil {
		return "", err
	}
	if _, err := s.append(ctx, sessionID, event); err != nil {
		return "", err
	}

	s.startRunner(sessionID)
	return sessionID, nil
}

// PauseSession cancels the session's execution unit, leaving the event log
// untouched. Returns whether a unit was running; pausing a dormant session
// is a no-op, not an error.
func (s *Service) PauseSession(ctx context.Context, sessionID string) (bool, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}
	return s.stopRunner(sessionID), nil
}

// ResumeSession starts a fresh execution unit for a dormant session, seeded
// from the log: state is re-folded and the phase recovered from the most
// recent "phase:entered" event. Resuming a running session is a no-op.
func (s *Service) ResumeSession(ctx context.Context, sessionID string) (bool, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}
	return s.startRunner(sessionID), nil
}

// ForkSession copies the source session's full event log, unmodified, into a
// newly allocated session. The fork is a point-in-time snapshot and fully
// independent thereafter.
func (s *Service) ForkSession(ctx context.Context, sessionID string) (string, int, error) {
	forkID := uuid.New().String()
	copied, err := s.store.CopySession(ctx, sessionID, forkID)
	if err != nil {
		return "", 0, err
	}

	marker, err := domain.NewEvent(domain.EventSessionForked, domain.SessionForkedPayload{Source: sessionID}, "")
	if err != nil {
		return "", 0, err
	}
	if _, err := s.append(ctx, forkID, marker); err != nil {
		return "", 0, err
	}
	return forkID, copied, nil
}

// DeleteSession cancels any running unit, then purges the session's events
// and its session row.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}
	s.stopRunner(sessionID)
	return s.store.DeleteSession(ctx, sessionID)
}

// AppendInput validates a caller-supplied event, checks it against the input
// policy, and appends and publishes it.
func (s *Service) AppendInput(ctx context.Context, sessionID string, event domain.Event) (domain.StoredEvent, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return domain.StoredEvent{}, err
	}
	if !exists {
		return domain.StoredEvent{}, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}

	if err := event.Normalize(); err != nil {
		return domain.StoredEvent{}, err
	}

	if s.policy != nil {
		var payload interface{}
		if len(event.Payload) > 0 {
			_ = json.Unmarshal(event.Payload, &payload)
		}
		decision, reason, err := s.policy.Evaluate(ctx, map[string]interface{}{
			"event_name": event.Name,
			"payload":    payload,
			"session_id": sessionID,
		})
		if err != nil {
			return domain.StoredEvent{}, errs.Wrap(errs.CodeInternal, "policy evaluation failed", err)
		}
		if decision == policy.DecisionBlock {
			if reason == "" {
				reason = "blocked by input policy"
			}
			return domain.StoredEvent{}, errs.New(errs.CodePolicyBlocked, "event %q rejected: %s", event.Name, reason)
		}
	}

	return s.append(ctx, sessionID, event)
}

// ListSessions lists sessions most-recently-created first, with the running
// flag filled in from the runner table.
func (s *Service) ListSessions(ctx context.Context) ([]domain.SessionInfo, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Running = s.IsRunning(sessions[i].ID)
	}
	return sessions, nil
}

// GetSession returns a single session's summary.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.SessionInfo, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == sessionID {
			return &sessions[i], nil
		}
	}
	return nil, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
}

// Events returns a session's log from the given position.
func (s *Service) Events(ctx context.Context, sessionID string, from int) ([]domain.StoredEvent, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}
	return s.store.GetEventsFrom(ctx, sessionID, from)
}

// Tape returns a replay tape over the session's full log, rewound to the
// start, paced by the configured step delay. The tape is a point-in-time
// value; events appended after this call are not on it.
func (s *Service) Tape(ctx context.Context, sessionID string) (tape.Tape, error) {
	events, err := s.Events(ctx, sessionID, 0)
	if err != nil {
		return tape.Tape{}, err
	}
	return tape.New(bareEvents(events), s.handlers, s.replayOptions()).
		WithStepDelay(s.opts.StepDelay), nil
}

// SessionState computes the session's state at a position (nil means the
// latest event). Folding starts from the nearest prior snapshot when one
// exists; the result is identical to folding from position 0.
func (s *Service) SessionState(ctx context.Context, sessionID string, position *int) (interface{}, int, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID)
	}

	events, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	target := len(events) - 1
	if position != nil {
		target = *position
	}
	if target > len(events)-1 {
		target = len(events) - 1
	}
	if target < -1 {
		target = -1
	}

	if target >= 0 {
		snap, err := s.store.NearestSnapshot(ctx, sessionID, target)
		if err != nil {
			log.Printf("WARN: session %s: snapshot lookup failed: %v", sessionID, err)
		}
		if snap != nil {
			var seed interface{}
			if err := json.Unmarshal(snap.State, &seed); err == nil {
				state := tape.ComputeStateFrom(bareEvents(events), s.handlers, s.replayOptions(), snap.Position, seed, target)
				return state, target, nil
			}
		}
	}

	state := tape.ComputeState(bareEvents(events), s.handlers, s.replayOptions(), target)
	return state, target, nil
}
