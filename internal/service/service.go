// Package service implements the session orchestrator: lifecycle transitions,
// the table of running execution units, and state reconstruction.
package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/replaykit/replayd/internal/bus"
	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/provider"
	"github.com/replaykit/replayd/internal/recorder"
	"github.com/replaykit/replayd/internal/tape"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	AppendEvent(ctx context.Context, sessionID string, event domain.Event) (int, error)
	GetEvents(ctx context.Context, sessionID string) ([]domain.StoredEvent, error)
	GetEventsFrom(ctx context.Context, sessionID string, from int) ([]domain.StoredEvent, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	ListSessions(ctx context.Context) ([]domain.SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CopySession(ctx context.Context, src, dst string) (int, error)
	SaveSnapshot(ctx context.Context, snap domain.StateSnapshot) error
	NearestSnapshot(ctx context.Context, sessionID string, maxPosition int) (*domain.StateSnapshot, error)
}

// PolicyEngine gates caller-supplied input events. Evaluate returns the
// decision, an optional human-readable reason, and any evaluation error.
type PolicyEngine interface {
	Evaluate(ctx context.Context, input interface{}) (string, string, error)
}

// Options tunes orchestrator behavior.
type Options struct {
	// SnapshotEvery writes a state snapshot every N appended events.
	// Zero disables snapshots.
	SnapshotEvery int

	// StepDelay paces Play on tapes handed out by Tape. Zero plays as fast
	// as possible.
	StepDelay time.Duration
}

// Service owns the set of currently-executing sessions. The runner table is
// its only shared mutable state; every transition that touches it takes mu.
type Service struct {
	store    Store
	bus      *bus.Bus
	caller   provider.Caller
	recorder *recorder.Recorder
	policy   PolicyEngine
	workflow Workflow
	handlers tape.Handlers
	opts     Options

	mu      sync.Mutex
	runners map[string]*runner
}

// runner is one cancellable execution unit. The pointer doubles as its
// identity so a finished runner never removes a successor's table entry.
type runner struct {
	cancel context.CancelFunc
}

// New creates the orchestrator.
func New(store Store, eventBus *bus.Bus, caller provider.Caller, rec *recorder.Recorder, policyEngine PolicyEngine, workflow Workflow, handlers tape.Handlers, opts Options) *Service {
	return &Service{
		store:    store,
		bus:      eventBus,
		caller:   caller,
		recorder: rec,
		policy:   policyEngine,
		workflow: workflow,
		handlers: handlers,
		opts:     opts,
		runners:  make(map[string]*runner),
	}
}

// Recorder exposes the recording catalog to the transport layer.
func (s *Service) Recorder() *recorder.Recorder { return s.recorder }

// Subscribe registers for a session's live events.
func (s *Service) Subscribe(sessionID string) *bus.Subscriber { return s.bus.Subscribe(sessionID) }

// Unsubscribe drops a live event subscriber.
func (s *Service) Unsubscribe(sub *bus.Subscriber) { s.bus.Unsubscribe(sub) }

// IsRunning reports whether an execution unit exists for the session.
func (s *Service) IsRunning(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runners[sessionID]
	return ok
}

// startRunner registers a fresh cancellable execution unit for the session.
// Returns false if one is already running.
func (s *Service) startRunner(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runners[sessionID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel}
	s.runners[sessionID] = r
	go s.run(ctx, sessionID, r)
	return true
}

// stopRunner cancels and removes a session's execution unit. Returns whether
// one was running.
func (s *Service) stopRunner(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[sessionID]
	if ok {
		r.cancel()
		delete(s.runners, sessionID)
	}
	return ok
}

// removeRunner removes the session's entry on natural completion, but only
// if the table still holds this runner: a pause followed by a resume may
// already have installed a successor.
func (s *Service) removeRunner(sessionID string, r *runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.runners[sessionID]; ok && current == r {
		delete(s.runners, sessionID)
	}
	r.cancel()
}

// run executes the workflow for one session: reconstruct state from the log,
// recover the phase to resume into, then hand off to the workflow. Provider
// failures terminate the execution unit; the log stays intact up to the last
// successfully appended event so the session can be inspected or resumed.
func (s *Service) run(ctx context.Context, sessionID string, r *runner) {
	defer s.removeRunner(sessionID, r)

	events, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: session %s: failed to load events: %v", sessionID, err)
		return
	}

	state := tape.ComputeState(bareEvents(events), s.handlers, s.replayOptions(), len(events)-1)
	phase := lastEnteredPhase(events)

	rt := &Runtime{svc: s, sessionID: sessionID}
	if err := s.workflow.Run(ctx, rt, phase, state); err != nil {
		if ctx.Err() != nil {
			// Paused or deleted; not a failure.
			return
		}
		log.Printf("ERROR: session %s: execution failed: %v", sessionID, err)
	}
}

// lastEnteredPhase scans the log backwards for the most recent
// "phase:entered" event and returns its phase, or "" if none exists.
func lastEnteredPhase(events []domain.StoredEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name != domain.EventPhaseEntered {
			continue
		}
		var payload domain.PhaseEnteredPayload
		if err := json.Unmarshal(events[i].Payload, &payload); err != nil {
			log.Printf("WARN: session %s: malformed phase:entered payload at position %d", events[i].SessionID, events[i].Position)
			continue
		}
		return payload.Phase
	}
	return ""
}

func (s *Service) replayOptions() tape.ReplayOptions {
	return tape.ReplayOptions{Initial: InitialState()}
}

// append persists an event, publishes it on the bus, and maintains periodic
// snapshots. Append is fully synchronous: by the time it returns, the
// assigned position is durable.
func (s *Service) append(ctx context.Context, sessionID string, event domain.Event) (domain.StoredEvent, error) {
	position, err := s.store.AppendEvent(ctx, sessionID, event)
	if err != nil {
		return domain.StoredEvent{}, err
	}
	stored := domain.StoredEvent{Event: event, SessionID: sessionID, Position: position}
	s.bus.Publish(stored)
	s.maybeSnapshot(ctx, sessionID, position)
	return stored, nil
}

// maybeSnapshot writes a state checkpoint every SnapshotEvery events.
// Snapshot failures are logged, never fatal: snapshots are an acceleration,
// not a source of truth.
func (s *Service) maybeSnapshot(ctx context.Context, sessionID string, position int) {
	if s.opts.SnapshotEvery <= 0 || (position+1)%s.opts.SnapshotEvery != 0 {
		return
	}
	events, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		log.Printf("WARN: session %s: snapshot load failed: %v", sessionID, err)
		return
	}
	state := tape.ComputeState(bareEvents(events), s.handlers, s.replayOptions(), position)
	raw, err := json.Marshal(state)
	if err != nil {
		log.Printf("WARN: session %s: snapshot state not serializable: %v", sessionID, err)
		return
	}
	if err := s.store.SaveSnapshot(ctx, domain.StateSnapshot{
		SessionID: sessionID,
		Position:  position,
		State:     raw,
	}); err != nil {
		log.Printf("WARN: session %s: snapshot write failed: %v", sessionID, err)
	}
}

func bareEvents(events []domain.StoredEvent) []domain.Event {
	out := make([]domain.Event, len(events))
	for i, evt := range events {
		out[i] = evt.Event
	}
	return out
}
