// Package models defines the control-channel wire messages and the
// event payloads published downstream.
package models

import (
	"encoding/json"
	"unicode/utf8"
)

// Control message types, client to server.
const (
	TypeStart = "start"
	TypeEnd   = "end"
)

// Control message types, server to client.
const (
	TypeAck        = "ack"
	TypePartialASR = "partial_asr"
	TypeFinalASR   = "final_asr"
	TypeLLM        = "llm"
)

// Command is a client-to-server control message.
type Command struct {
	Type string `json:"type"`
}

// Ack acknowledges a started turn and carries the Answer Service session id.
type Ack struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// PartialASR carries the running ordered aggregate of the current turn.
// Idx is the highest sequence index that has contributed so far.
type PartialASR struct {
	Type string `json:"type"`
	Idx  int    `json:"idx"`
	Text string `json:"text"`
}

// FinalASR carries the final ordered transcript of a turn.
type FinalASR struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LLMEvent relays one Answer Service stream event to the client.
// Event is one of "open", "opener", "final", "error", "done".
type LLMEvent struct {
	Type  string  `json:"type"`
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// DoneReason is the payload of a synthetic done event emitted without an
// Answer Service query.
type DoneReason struct {
	Reason    string `json:"reason"`
	WordTotal int    `json:"wordTotal"`
}

// Payload is a tagged union over Answer Service event data: either a
// structured JSON value or raw text that failed structured decoding.
// Exactly one of the two is set.
type Payload struct {
	Structured json.RawMessage
	Text       string
}

// StructuredPayload wraps an already-encoded JSON value.
func StructuredPayload(raw json.RawMessage) Payload {
	return Payload{Structured: raw}
}

// TextPayload wraps raw text verbatim.
func TextPayload(s string) Payload {
	return Payload{Text: s}
}

// PayloadFrom classifies raw bytes from the upstream stream: valid JSON is
// kept structured, anything else is forwarded as text. An event is never
// dropped because its data failed to decode.
func PayloadFrom(raw []byte) Payload {
	if len(raw) > 0 && utf8.Valid(raw) && json.Valid(raw) {
		return Payload{Structured: json.RawMessage(raw)}
	}
	return Payload{Text: string(raw)}
}

// MarshalJSON emits the structured value as-is, or the text as a JSON string.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.Structured) > 0 {
		return p.Structured, nil
	}
	return json.Marshal(p.Text)
}

// UnmarshalJSON keeps the raw value; consumers decide how to interpret it.
func (p *Payload) UnmarshalJSON(data []byte) error {
	p.Structured = append(p.Structured[:0], data...)
	p.Text = ""
	return nil
}
