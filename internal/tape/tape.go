package tape

import (
	"context"
	"time"

	"github.com/replaykit/replayd/internal/domain"
)

// Status is the playback status of a Tape.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusRecording Status = "recording"
)

// Tape is an immutable, position-addressable view over an event log. Every
// control method returns a new Tape; no Tape is mutated after construction.
// The position is always clamped into [0, len-1] (0 for an empty tape).
type Tape struct {
	events   []domain.Event
	handlers Handlers
	opts     ReplayOptions
	position int
	status   Status
	state    interface{} // state at position, computed at construction

	// StepDelay paces Play between steps; zero plays as fast as possible.
	stepDelay time.Duration
}

// New creates a tape over events at position 0 with status idle.
func New(events []domain.Event, handlers Handlers, opts ReplayOptions) Tape {
	return newAt(events, handlers, opts, 0, StatusIdle, 0)
}

func newAt(events []domain.Event, handlers Handlers, opts ReplayOptions, position int, status Status, delay time.Duration) Tape {
	position = clampPosition(position, len(events))
	state := ComputeState(events, handlers, opts, position)
	if len(events) == 0 {
		state = opts.Initial
	}
	return Tape{
		events:    events,
		handlers:  handlers,
		opts:      opts,
		position:  position,
		status:    status,
		state:     state,
		stepDelay: delay,
	}
}

func clampPosition(p, length int) int {
	if length == 0 {
		return 0
	}
	return clamp(p, 0, length-1)
}

// WithStepDelay returns a tape whose Play pauses between steps.
func (t Tape) WithStepDelay(d time.Duration) Tape {
	t.stepDelay = d
	return t
}

// Len returns the number of events on the tape.
func (t Tape) Len() int { return len(t.events) }

// Position returns the current cursor position.
func (t Tape) Position() int { return t.position }

// Status returns the playback status.
func (t Tape) Status() Status { return t.status }

// Events returns the full ordered event sequence.
func (t Tape) Events() []domain.Event { return t.events }

// State returns the state at the current position.
func (t Tape) State() interface{} { return t.state }

// Step advances one position, clamped to the end of the tape.
func (t Tape) Step() Tape {
	return t.StepTo(t.position + 1)
}

// StepBack moves back one position, clamped to the start of the tape.
func (t Tape) StepBack() Tape {
	return t.StepTo(t.position - 1)
}

// StepTo jumps to a position, clamped into [0, len-1]. Changing position
// discards the cached state and re-folds from position 0.
func (t Tape) StepTo(p int) Tape {
	return newAt(t.events, t.handlers, t.opts, p, StatusPaused, t.stepDelay)
}

// Rewind returns to position 0 with status idle.
func (t Tape) Rewind() Tape {
	return newAt(t.events, t.handlers, t.opts, 0, StatusIdle, t.stepDelay)
}

// Pause returns the tape at its current position with status paused.
func (t Tape) Pause() Tape {
	t.status = StatusPaused
	return t
}

// Play advances to the end of the tape. See PlayTo.
func (t Tape) Play(ctx context.Context, observe func(Tape)) (Tape, error) {
	return t.PlayTo(ctx, len(t.events)-1, observe)
}

// PlayTo advances one position at a time toward target, pausing stepDelay
// between steps. Each intermediate tape has status playing and is passed to
// observe (which may be nil); the returned tape is paused. If the tape is
// already at or past the target it returns immediately, paused. Cancelling
// ctx stops the advance at the position reached so far.
func (t Tape) PlayTo(ctx context.Context, target int, observe func(Tape)) (Tape, error) {
	target = clampPosition(target, len(t.events))
	if t.position >= target {
		return t.Pause(), nil
	}

	current := t
	for current.position < target {
		if t.stepDelay > 0 {
			select {
			case <-ctx.Done():
				return current.Pause(), ctx.Err()
			case <-time.After(t.stepDelay):
			}
		} else if err := ctx.Err(); err != nil {
			return current.Pause(), err
		}

		current = newAt(t.events, t.handlers, t.opts, current.position+1, StatusPlaying, t.stepDelay)
		if observe != nil {
			observe(current)
		}
	}
	return current.Pause(), nil
}

// StateAt returns the state at position p without moving the cursor.
// p is clamped into [-1, len-1]; -1 yields the initial state.
func (t Tape) StateAt(p int) interface{} {
	return ComputeState(t.events, t.handlers, t.opts, p)
}

// EventAt returns the event at position p without moving the cursor.
// The second return is false if the tape is empty; otherwise p is clamped.
func (t Tape) EventAt(p int) (domain.Event, bool) {
	if len(t.events) == 0 {
		return domain.Event{}, false
	}
	return t.events[clampPosition(p, len(t.events))], true
}
