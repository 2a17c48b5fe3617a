// Package relay forwards one Answer Service query stream per session to the
// control channel, preserving arrival order and guaranteeing teardown on
// every exit path.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"voicechat-orchestrator/internal/answer"
	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/observability/metrics"
)

// Outcomes reported to the Turn Controller when a relay settles.
const (
	OutcomeDone       = "done"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// EmitFunc forwards one llm event toward the client.
type EmitFunc func(event string, data models.Payload)

// SettledFunc notifies the owner that the relay finished with the given
// outcome. Not called for superseded relays' replacements, only for the
// relay itself.
type SettledFunc func(outcome string)

// Relay owns the single-flight answer stream of one session. A new Open
// call supersedes and closes any still-open prior stream; the turn state
// machine prevents overlap in normal operation.
type Relay struct {
	id      string
	svc     answer.Service
	metrics *metrics.Metrics

	mu      sync.Mutex
	current *running
}

type running struct {
	stream     answer.EventStream
	superseded bool
}

// New creates a Relay for one session.
func New(id string, svc answer.Service) *Relay {
	return &Relay{
		id:      id,
		svc:     svc,
		metrics: metrics.DefaultMetrics,
	}
}

// Open starts one streamed query and forwards its events through emit until
// the stream settles. Returns an error only when the query could not be
// opened; from then on all failures surface as forwarded error events.
func (r *Relay) Open(ctx context.Context, answerSessionID, transcript string, emit EmitFunc, settled SettledFunc) error {
	stream, err := r.svc.StreamQuery(ctx, answerSessionID, transcript)
	if err != nil {
		return err
	}

	run := &running{stream: stream}

	r.mu.Lock()
	prev := r.current
	r.current = run
	r.mu.Unlock()

	if prev != nil {
		r.supersede(prev)
	}

	r.metrics.RelaysOpened.Inc()
	emit(answer.EventOpen, models.StructuredPayload(json.RawMessage(`{}`)))

	go r.forward(run, emit, settled)
	return nil
}

// CloseCurrent tears down any open stream without emitting further events.
// Used when the session itself goes away.
func (r *Relay) CloseCurrent() {
	r.mu.Lock()
	run := r.current
	r.current = nil
	r.mu.Unlock()
	if run != nil {
		r.supersede(run)
	}
}

func (r *Relay) supersede(run *running) {
	r.mu.Lock()
	run.superseded = true
	r.mu.Unlock()
	run.stream.Close()
	r.metrics.RelaysSuperseded.Inc()
}

// forward drains the stream in arrival order. The upstream is closed on
// done, error or supersession; nothing outlives the turn.
func (r *Relay) forward(run *running, emit EmitFunc, settled SettledFunc) {
	logger := logging.WithSession(r.id)

	outcome := ""
	for ev := range run.stream.Events() {
		r.mu.Lock()
		dead := run.superseded
		r.mu.Unlock()
		if dead {
			break
		}

		r.metrics.RelayEvents.WithLabelValues(ev.Name).Inc()
		emit(ev.Name, ev.Data)

		if ev.Name == answer.EventDone {
			outcome = OutcomeDone
			break
		}
		if ev.Name == answer.EventError {
			outcome = OutcomeError
			break
		}
	}
	run.stream.Close()

	r.mu.Lock()
	superseded := run.superseded
	if r.current == run {
		r.current = nil
	}
	r.mu.Unlock()

	if superseded {
		settled(OutcomeSuperseded)
		return
	}
	if outcome == "" {
		// Upstream ended without a terminal event; surface it as an error
		// so the client is never left waiting.
		logger.Warn().Msg("answer stream closed without terminal event")
		emit(answer.EventError, models.TextPayload("answer stream closed unexpectedly"))
		outcome = OutcomeError
	}
	settled(outcome)
}
