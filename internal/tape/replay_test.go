package tape

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/replaykit/replayd/internal/domain"
)

func tickEvent(t *testing.T, amount int) domain.Event {
	t.Helper()
	evt, err := domain.NewEvent("tick", map[string]int{"amount": amount}, "")
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return evt
}

func tickEvents(t *testing.T, amounts ...int) []domain.Event {
	t.Helper()
	events := make([]domain.Event, 0, len(amounts))
	for _, a := range amounts {
		events = append(events, tickEvent(t, a))
	}
	return events
}

func counterHandlers() Handlers {
	return Handlers{
		"tick": func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			var p struct {
				Amount int `json:"amount"`
			}
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return state, nil
			}
			return state.(int) + p.Amount, nil
		},
	}
}

func counterOpts() ReplayOptions {
	return ReplayOptions{Initial: 0, OnUnknown: NopUnknown}
}

func TestComputeStateFold(t *testing.T) {
	events := tickEvents(t, 1, 1, 1)

	cases := []struct {
		toPosition int
		want       int
	}{
		{-1, 0},
		{0, 1},
		{1, 2},
		{2, 3},
		{99, 3},
		{-50, 0},
	}
	for _, tc := range cases {
		got := ComputeState(events, counterHandlers(), counterOpts(), tc.toPosition)
		if got != tc.want {
			t.Fatalf("ComputeState(%d) = %v, want %d", tc.toPosition, got, tc.want)
		}
	}
}

func TestComputeStateDeterministic(t *testing.T) {
	events := tickEvents(t, 2, 3, 5)
	first := ComputeState(events, counterHandlers(), counterOpts(), 2)
	second := ComputeState(events, counterHandlers(), counterOpts(), 2)
	if first != second {
		t.Fatalf("replay not deterministic: %v vs %v", first, second)
	}
}

func TestComputeStateSkipsUnknownEvents(t *testing.T) {
	mystery, err := domain.NewEvent("mystery", nil, "")
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	events := []domain.Event{tickEvent(t, 1), mystery, tickEvent(t, 1)}

	var seen []string
	opts := ReplayOptions{Initial: 0, OnUnknown: func(evt domain.Event) {
		seen = append(seen, evt.Name)
	}}
	got := ComputeState(events, counterHandlers(), opts, len(events)-1)
	if got != 2 {
		t.Fatalf("expected unknown event skipped, state = %v", got)
	}
	if len(seen) != 1 || seen[0] != "mystery" {
		t.Fatalf("unexpected unknown reports: %v", seen)
	}
}

func TestComputeStateFromSnapshotSeed(t *testing.T) {
	events := tickEvents(t, 1, 2, 3, 4, 5)
	handlers := counterHandlers()
	opts := counterOpts()

	for after := -1; after < len(events); after++ {
		seed := ComputeState(events, handlers, opts, after)
		for to := after; to < len(events); to++ {
			full := ComputeState(events, handlers, opts, to)
			seeded := ComputeStateFrom(events, handlers, opts, after, seed, to)
			if full != seeded {
				t.Fatalf("seeded fold diverged at after=%d to=%d: %v vs %v", after, to, seeded, full)
			}
		}
	}
}

func TestComputeStateEmptyLog(t *testing.T) {
	got := ComputeState(nil, counterHandlers(), counterOpts(), 0)
	if got != 0 {
		t.Fatalf("expected initial state, got %v", got)
	}
}

func TestHandlerEmittedEventsNotReapplied(t *testing.T) {
	handlers := Handlers{
		"tick": func(evt domain.Event, state interface{}) (interface{}, []domain.Event) {
			emitted, err := domain.NewEvent("tick", map[string]int{"amount": 100}, evt.ID)
			if err != nil {
				panic(fmt.Sprintf("NewEvent: %v", err))
			}
			return state.(int) + 1, []domain.Event{emitted}
		},
	}
	events := tickEvents(t, 0, 0)
	got := ComputeState(events, handlers, counterOpts(), 1)
	if got != 2 {
		t.Fatalf("emitted events leaked into replay: %v", got)
	}
}
