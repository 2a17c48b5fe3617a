// Package client implements the call-side turn state machine: voice
// activity detection, silence endpointing, barge-in and transcript deltas
// over the orchestrator's two WebSocket channels.
package client

import "fmt"

// State represents the call state of the client.
type State int

const (
	// StateIdle - Not connected.
	StateIdle State = iota
	// StateConnecting - Channels are being established.
	StateConnecting
	// StateInCall - Listening; voice opens a turn, silence closes it.
	StateInCall
	// StateProcessing - Turn ended, waiting for the answer stream.
	StateProcessing
	// StateEnding - Teardown requested, waiting for the in-flight turn.
	StateEnding
	// StateError - The call failed.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateInCall:
		return "IN_CALL"
	case StateProcessing:
		return "PROCESSING"
	case StateEnding:
		return "ENDING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}
