package models

// Downstream event type discriminators.
const (
	EventTypeTurnFinal  = "turn.final"
	EventTypeTurnAnswer = "turn.answer"
)

// TurnFinal is the downstream event published when a turn's transcript is
// finalized.
type TurnFinal struct {
	EventID       string `json:"eventId"`
	EventType     string `json:"eventType"`
	CorrelationID string `json:"correlationId"`
	Generation    uint64 `json:"generation"`
	Text          string `json:"text"`
	WordCount     int    `json:"wordCount"`
	Timestamp     int64  `json:"timestamp"`
}

// TurnAnswer is the downstream event published when a turn's answer stream
// settles.
type TurnAnswer struct {
	EventID         string `json:"eventId"`
	EventType       string `json:"eventType"`
	CorrelationID   string `json:"correlationId"`
	AnswerSessionID string `json:"answerSessionId"`
	Outcome         string `json:"outcome"` // "done", "error" or "insufficient_words"
	Reason          string `json:"reason,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}
