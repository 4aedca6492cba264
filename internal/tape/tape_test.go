package tape

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestNewTape(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts())

	if tp.Len() != 3 {
		t.Fatalf("expected len 3, got %d", tp.Len())
	}
	if tp.Position() != 0 {
		t.Fatalf("expected position 0, got %d", tp.Position())
	}
	if tp.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", tp.Status())
	}
	if tp.State() != 1 {
		t.Fatalf("expected state 1 at position 0, got %v", tp.State())
	}
}

func TestNewTapeEmpty(t *testing.T) {
	tp := New(nil, counterHandlers(), counterOpts())
	if tp.Len() != 0 || tp.Position() != 0 {
		t.Fatalf("unexpected empty tape: len=%d pos=%d", tp.Len(), tp.Position())
	}
	if tp.State() != 0 {
		t.Fatalf("expected initial state, got %v", tp.State())
	}
	if _, ok := tp.EventAt(0); ok {
		t.Fatal("EventAt on empty tape should report false")
	}
}

func TestStepAndStepBack(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts())

	tp = tp.Step()
	if tp.Position() != 1 || tp.State() != 2 {
		t.Fatalf("after step: pos=%d state=%v", tp.Position(), tp.State())
	}
	if tp.Status() != StatusPaused {
		t.Fatalf("step should pause, got %s", tp.Status())
	}

	tp = tp.Step().Step().Step()
	if tp.Position() != 2 {
		t.Fatalf("step past end should clamp to 2, got %d", tp.Position())
	}

	tp = tp.StepBack().StepBack().StepBack().StepBack()
	if tp.Position() != 0 {
		t.Fatalf("step back past start should clamp to 0, got %d", tp.Position())
	}
	if tp.State() != 1 {
		t.Fatalf("expected state 1 at position 0, got %v", tp.State())
	}
}

func TestStepToClamps(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts())

	if got := tp.StepTo(99).Position(); got != 2 {
		t.Fatalf("StepTo(99) should clamp to 2, got %d", got)
	}
	if got := tp.StepTo(-5).Position(); got != 0 {
		t.Fatalf("StepTo(-5) should clamp to 0, got %d", got)
	}
}

func TestRewind(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts()).StepTo(2)
	tp = tp.Rewind()
	if tp.Position() != 0 || tp.Status() != StatusIdle {
		t.Fatalf("after rewind: pos=%d status=%s", tp.Position(), tp.Status())
	}
}

func TestStateAt(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts())

	if got := tp.StateAt(0); got != 1 {
		t.Fatalf("StateAt(0) = %v, want 1", got)
	}
	if got := tp.StateAt(2); got != 3 {
		t.Fatalf("StateAt(2) = %v, want 3", got)
	}
	if got := tp.StateAt(-1); got != 0 {
		t.Fatalf("StateAt(-1) = %v, want initial state 0", got)
	}
	if got := tp.StateAt(99); got != tp.StateAt(2) {
		t.Fatalf("StateAt(99) = %v, want StateAt(2) = %v", got, tp.StateAt(2))
	}
	if tp.Position() != 0 {
		t.Fatalf("StateAt moved the cursor to %d", tp.Position())
	}
}

func TestTapeImmutability(t *testing.T) {
	original := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts())
	stepped := original.Step()

	if original.Position() != 0 || original.Status() != StatusIdle {
		t.Fatalf("original tape changed: pos=%d status=%s", original.Position(), original.Status())
	}
	if stepped.Position() != 1 {
		t.Fatalf("stepped tape at %d", stepped.Position())
	}
}

func TestPlayObservesEachPosition(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1, 1), counterHandlers(), counterOpts())

	var positions []int
	final, err := tp.Play(context.Background(), func(cur Tape) {
		if cur.Status() != StatusPlaying {
			t.Fatalf("intermediate tape has status %s", cur.Status())
		}
		positions = append(positions, cur.Position())
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if final.Position() != 3 || final.Status() != StatusPaused {
		t.Fatalf("final tape: pos=%d status=%s", final.Position(), final.Status())
	}
	want := []int{1, 2, 3}
	if len(positions) != len(want) {
		t.Fatalf("observed positions %v, want %v", positions, want)
	}
	for i, p := range want {
		if positions[i] != p {
			t.Fatalf("observed positions %v, want %v", positions, want)
		}
	}
}

func TestPlayToAlreadyAtTarget(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1), counterHandlers(), counterOpts()).StepTo(2)

	called := false
	final, err := tp.PlayTo(context.Background(), 1, func(Tape) { called = true })
	if err != nil {
		t.Fatalf("PlayTo failed: %v", err)
	}
	if called {
		t.Fatal("observe should not fire when already past target")
	}
	if final.Position() != 2 || final.Status() != StatusPaused {
		t.Fatalf("final tape: pos=%d status=%s", final.Position(), final.Status())
	}
}

func TestPlayCancellation(t *testing.T) {
	tp := New(tickEvents(t, 1, 1, 1, 1, 1), counterHandlers(), counterOpts()).
		WithStepDelay(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var final Tape
	var err error
	go func() {
		final, err = tp.Play(ctx, nil)
		close(done)
	}()

	time.Sleep(75 * time.Millisecond)
	cancel()
	<-done

	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if final.Status() != StatusPaused {
		t.Fatalf("cancelled play should pause, got %s", final.Status())
	}
	if final.Position() >= 4 {
		t.Fatalf("play should have stopped early, reached %d", final.Position())
	}
}

func TestEventAtClamps(t *testing.T) {
	events := tickEvents(t, 1, 2, 3)
	tp := New(events, counterHandlers(), counterOpts())

	evt, ok := tp.EventAt(99)
	if !ok {
		t.Fatal("expected an event")
	}
	if evt.ID != events[2].ID {
		t.Fatal("EventAt(99) should clamp to last event")
	}
	evt, ok = tp.EventAt(-10)
	if !ok || evt.ID != events[0].ID {
		t.Fatal("EventAt(-10) should clamp to first event")
	}
}

func TestTapeStateMatchesFold(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		amounts := rapid.SliceOfN(rapid.IntRange(-10, 10), 1, 20).Draw(rt, "amounts")
		events := tickEvents(t, amounts...)
		tp := New(events, counterHandlers(), counterOpts())

		pos := rapid.IntRange(-5, len(events)+5).Draw(rt, "pos")
		moved := tp.StepTo(pos)

		clamped := pos
		if clamped < 0 {
			clamped = 0
		}
		if clamped > len(events)-1 {
			clamped = len(events) - 1
		}
		sum := 0
		for i := 0; i <= clamped; i++ {
			sum += amounts[i]
		}
		if moved.State() != sum {
			rt.Fatalf("state at %d = %v, want %d", pos, moved.State(), sum)
		}
		if moved.Position() != clamped {
			rt.Fatalf("position = %d, want %d", moved.Position(), clamped)
		}
	})
}

func TestSeededReplayEquivalence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		amounts := rapid.SliceOfN(rapid.IntRange(-10, 10), 1, 20).Draw(rt, "amounts")
		events := tickEvents(t, amounts...)
		handlers := counterHandlers()
		opts := counterOpts()

		after := rapid.IntRange(-1, len(events)-1).Draw(rt, "after")
		to := rapid.IntRange(after, len(events)-1).Draw(rt, "to")

		seed := ComputeState(events, handlers, opts, after)
		full := ComputeState(events, handlers, opts, to)
		seeded := ComputeStateFrom(events, handlers, opts, after, seed, to)
		if full != seeded {
			rt.Fatalf("seeded fold diverged: %v vs %v", seeded, full)
		}
	})
}
