// Package turn drives the per-session turn lifecycle: collecting audio,
// finalizing the transcript behind the job barrier, and relaying the answer.
package turn

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session's turn machine.
type State int

const (
	// StateIdle - No turn has started yet.
	StateIdle State = iota
	// StateCollecting - A turn is active, audio is being segmented.
	StateCollecting
	// StateFinalizing - End received, waiting for outstanding jobs.
	StateFinalizing
	// StateAwaitingAnswer - Final transcript sent, answer stream open.
	StateAwaitingAnswer
	// StateDone - The turn completed; the next start reuses the session.
	StateDone
	// StateError - The turn failed; the next start recovers the session.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCollecting:
		return "COLLECTING"
	case StateFinalizing:
		return "FINALIZING"
	case StateAwaitingAnswer:
		return "AWAITING_ANSWER"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsSettled returns true if no turn work is in flight (IDLE, DONE or ERROR).
func (s State) IsSettled() bool {
	return s == StateIdle || s == StateDone || s == StateError
}

// Errors for invalid state transitions.
var (
	ErrNoActiveTurn     = errors.New("no active turn")
	ErrAlreadyFinalized = errors.New("turn already finalized")
)

// Lifecycle manages the turn state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → COLLECTING → FINALIZING → AWAITING_ANSWER → DONE
//	           ↑            └──────────→ DONE (insufficient words)
//	           └── Begin() from any state (a new start supersedes)
//
// ERROR is reachable from any non-settled state; Begin() recovers from
// DONE and ERROR alike.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CanIngest returns true if audio should be segmented right now.
func (l *Lifecycle) CanIngest() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateCollecting
}

// CanEmitPartial returns true if a partial transcript may still reach the
// client. Late completions keep landing while the barrier drains, so
// FINALIZING still emits.
func (l *Lifecycle) CanEmitPartial() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateCollecting || l.state == StateFinalizing
}

// Begin transitions to COLLECTING. Allowed from every state: a start during
// an active turn supersedes it (the generation bump makes the old turn's
// work stale). Returns the state that was superseded.
func (l *Lifecycle) Begin() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.state
	l.state = StateCollecting
	return prev
}

// Finalize transitions COLLECTING to FINALIZING. The end command is
// idempotent, so repeated calls report ErrAlreadyFinalized and an end
// without a turn reports ErrNoActiveTurn; callers treat both as no-ops.
func (l *Lifecycle) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateCollecting:
		l.state = StateFinalizing
		return nil
	case StateFinalizing, StateAwaitingAnswer:
		return ErrAlreadyFinalized
	case StateIdle, StateDone, StateError:
		return ErrNoActiveTurn
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Await transitions FINALIZING to AWAITING_ANSWER.
func (l *Lifecycle) Await() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFinalizing {
		return fmt.Errorf("await from %v: %w", l.state, ErrNoActiveTurn)
	}
	l.state = StateAwaitingAnswer
	return nil
}

// Complete transitions FINALIZING or AWAITING_ANSWER to DONE.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFinalizing && l.state != StateAwaitingAnswer {
		return fmt.Errorf("complete from %v: %w", l.state, ErrNoActiveTurn)
	}
	l.state = StateDone
	return nil
}

// Fail transitions to ERROR from any non-settled state.
// Returns true if the state changed.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsSettled() {
		return false
	}
	l.state = StateError
	return true
}

// Abort returns the machine to IDLE. Used when a turn could not be set up
// at all (no answer session), so there is nothing to finalize later.
func (l *Lifecycle) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateIdle
}
