package turn

import (
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if lc.CanIngest() {
		t.Error("expected CanIngest to be false before a turn")
	}
	if lc.CanEmitPartial() {
		t.Error("expected CanEmitPartial to be false before a turn")
	}
}

func TestLifecycle_BeginFromAnyState(t *testing.T) {
	lc := NewLifecycle()

	if prev := lc.Begin(); prev != StateIdle {
		t.Errorf("expected superseded StateIdle, got %v", prev)
	}
	if lc.State() != StateCollecting {
		t.Errorf("expected StateCollecting, got %v", lc.State())
	}

	// A second start supersedes the active turn.
	if prev := lc.Begin(); prev != StateCollecting {
		t.Errorf("expected superseded StateCollecting, got %v", prev)
	}
	if lc.State() != StateCollecting {
		t.Errorf("expected StateCollecting, got %v", lc.State())
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	lc := NewLifecycle()

	lc.Begin()
	if err := lc.Finalize(); err != nil {
		t.Fatalf("finalize: unexpected error: %v", err)
	}
	if !lc.CanEmitPartial() {
		t.Error("expected partials allowed while finalizing")
	}
	if err := lc.Await(); err != nil {
		t.Fatalf("await: unexpected error: %v", err)
	}
	if err := lc.Complete(); err != nil {
		t.Fatalf("complete: unexpected error: %v", err)
	}
	if lc.State() != StateDone {
		t.Errorf("expected StateDone, got %v", lc.State())
	}

	// The next start reuses the session.
	if prev := lc.Begin(); prev != StateDone {
		t.Errorf("expected superseded StateDone, got %v", prev)
	}
}

func TestLifecycle_FinalizeIdempotent(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin()

	if err := lc.Finalize(); err != nil {
		t.Fatalf("first finalize: unexpected error: %v", err)
	}
	if err := lc.Finalize(); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("second finalize: expected ErrAlreadyFinalized, got %v", err)
	}

	lc.Await()
	if err := lc.Finalize(); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("finalize while awaiting: expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestLifecycle_FinalizeWithoutTurn(t *testing.T) {
	lc := NewLifecycle()

	if err := lc.Finalize(); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("expected ErrNoActiveTurn, got %v", err)
	}

	lc.Begin()
	lc.Finalize()
	lc.Complete()
	if err := lc.Finalize(); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("finalize after done: expected ErrNoActiveTurn, got %v", err)
	}
}

func TestLifecycle_CompleteFromFinalizing(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin()
	lc.Finalize()

	// Insufficient words path skips AWAITING_ANSWER entirely.
	if err := lc.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateDone {
		t.Errorf("expected StateDone, got %v", lc.State())
	}
}

func TestLifecycle_Fail(t *testing.T) {
	lc := NewLifecycle()

	// Nothing in flight, nothing to fail.
	if lc.Fail() {
		t.Error("expected Fail to return false from IDLE")
	}

	lc.Begin()
	if !lc.Fail() {
		t.Error("expected Fail to return true from COLLECTING")
	}
	if lc.State() != StateError {
		t.Errorf("expected StateError, got %v", lc.State())
	}

	// Error is settled; failing again is a no-op.
	if lc.Fail() {
		t.Error("expected Fail to return false from ERROR")
	}

	// The next start recovers.
	lc.Begin()
	if lc.State() != StateCollecting {
		t.Errorf("expected StateCollecting after recovery, got %v", lc.State())
	}
}

func TestLifecycle_Abort(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin()
	lc.Abort()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if err := lc.Finalize(); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("expected ErrNoActiveTurn after abort, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateCollecting, "COLLECTING"},
		{StateFinalizing, "FINALIZING"},
		{StateAwaitingAnswer, "AWAITING_ANSWER"},
		{StateDone, "DONE"},
		{StateError, "ERROR"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_IsSettled(t *testing.T) {
	tests := []struct {
		state   State
		settled bool
	}{
		{StateIdle, true},
		{StateCollecting, false},
		{StateFinalizing, false},
		{StateAwaitingAnswer, false},
		{StateDone, true},
		{StateError, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsSettled(); got != tt.settled {
			t.Errorf("State(%s).IsSettled() = %v, want %v", tt.state, got, tt.settled)
		}
	}
}
