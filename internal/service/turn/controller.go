package turn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicechat-orchestrator/internal/answer"
	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/observability/metrics"
	"voicechat-orchestrator/internal/service/audio"
	"voicechat-orchestrator/internal/service/relay"
	"voicechat-orchestrator/internal/service/scheduler"
	"voicechat-orchestrator/internal/service/stt"
)

// Turn outcomes, used for metrics labels and downstream events.
const (
	outcomeAnswered          = "answered"
	outcomeInsufficientWords = "insufficient_words"
	outcomeError             = "error"
)

// Sender delivers server-to-client control messages. The transport layer
// serializes writes; the controller never assumes ordering across senders.
type Sender interface {
	SendAck(answerSessionID string) error
	SendPartial(idx int, text string) error
	SendFinal(text string) error
	SendAnswerEvent(event string, data models.Payload) error
}

// Publisher emits downstream turn events. Implementations may be disabled
// and just log.
type Publisher interface {
	PublishTurnFinal(ctx context.Context, evt models.TurnFinal) error
	PublishTurnAnswer(ctx context.Context, evt models.TurnAnswer) error
}

// Options configures one session's turn machinery.
type Options struct {
	SegmentBytes    int
	MaxConcurrent   int64
	MinPartialWords int
	MinFinalWords   int
}

// Controller owns one session's turn flow. Control commands arrive from the
// control channel, audio bytes from the audio channel; the controller's
// mutex plus generation stamping make the combination safe.
type Controller struct {
	id        string
	lifecycle *Lifecycle
	receiver  *audio.Receiver
	sched     *scheduler.Scheduler
	relay     *relay.Relay
	answers   answer.Service
	sender    Sender
	publisher Publisher
	metrics   *metrics.Metrics

	minFinalWords int

	mu              sync.Mutex
	generation      uint64
	answerSessionID string
}

// NewController wires the receiver, scheduler and relay for one session.
func NewController(id string, engine stt.Engine, answers answer.Service, sender Sender, publisher Publisher, opts Options) *Controller {
	c := &Controller{
		id:            id,
		lifecycle:     NewLifecycle(),
		receiver:      audio.NewReceiver(opts.SegmentBytes),
		relay:         relay.New(id, answers),
		answers:       answers,
		sender:        sender,
		publisher:     publisher,
		metrics:       metrics.DefaultMetrics,
		minFinalWords: opts.MinFinalWords,
	}
	c.sched = scheduler.New(id, engine, opts.MaxConcurrent, opts.MinPartialWords, c.handlePartial)
	return c
}

// State exposes the current lifecycle state.
func (c *Controller) State() State { return c.lifecycle.State() }

// Generation returns the current turn generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Start begins a new turn: generation bump, buffer and scheduler reset, and
// a fresh Answer Service session. A start during an active turn supersedes
// it; everything stamped with the old generation becomes stale.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.receiver.Reset(gen)
	c.answerSessionID = ""
	c.mu.Unlock()

	c.sched.Reset(gen)
	c.relay.CloseCurrent()

	prev := c.lifecycle.Begin()
	logger := logging.WithTurn(c.id, gen)
	if !prev.IsSettled() {
		logger.Info().Str("superseded", prev.String()).Msg("start superseded active turn")
	}
	c.metrics.TurnsStarted.Inc()

	sessionID, err := c.answers.CreateSession(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("answer session creation failed")
		c.sendAnswerEvent(answer.EventError, models.TextPayload("answer service unavailable"))
		c.lifecycle.Abort()
		return
	}

	c.mu.Lock()
	stale := gen != c.generation
	if !stale {
		c.answerSessionID = sessionID
	}
	c.mu.Unlock()
	if stale {
		return
	}

	logger.Info().Str("answerSessionId", sessionID).Msg("turn started")
	if err := c.sender.SendAck(sessionID); err != nil {
		logger.Warn().Err(err).Msg("ack delivery failed")
	}
}

// Ingest feeds raw PCM into the rolling buffer and schedules every full
// segment that falls out. Audio outside an active turn is dropped. The
// lifecycle check happens under the same lock as the buffer append, so a
// frame racing with End either lands before the trailing flush or is
// dropped; it can never strand bytes behind the flush.
func (c *Controller) Ingest(ctx context.Context, b []byte) {
	c.mu.Lock()
	if !c.lifecycle.CanIngest() {
		c.mu.Unlock()
		return
	}
	segs := c.receiver.Ingest(b)
	c.mu.Unlock()

	c.metrics.AudioBytesReceived.Add(float64(len(b)))
	for _, seg := range segs {
		c.metrics.SegmentsEmitted.Inc()
		c.sched.Schedule(ctx, seg)
	}
}

// End finalizes the current turn: the trailing remainder is flushed as one
// short segment, then a goroutine waits behind the job barrier and runs the
// finalize step. Repeated ends and ends without a turn are no-ops.
func (c *Controller) End(ctx context.Context) {
	if err := c.lifecycle.Finalize(); err != nil {
		logger := logging.WithSession(c.id)
		logger.Debug().Err(err).Msg("end ignored")
		return
	}

	c.mu.Lock()
	gen := c.generation
	trailing, ok := c.receiver.Flush()
	c.mu.Unlock()

	if ok {
		c.metrics.TrailingFlushes.Inc()
		c.metrics.SegmentsEmitted.Inc()
		c.sched.Schedule(ctx, trailing)
	}

	started := time.Now()
	go func() {
		<-c.sched.Barrier()
		if c.staleGeneration(gen) {
			return
		}
		c.metrics.BarrierLatency.Observe(time.Since(started).Seconds())
		c.finalize(ctx, gen)
	}()
}

// Close tears the session down: any open answer stream is closed and the
// transcription engine is released. In-flight jobs settle as stale.
func (c *Controller) Close() {
	c.relay.CloseCurrent()
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	c.sched.Reset(gen)
}

// finalize runs once per turn after the barrier drains: it emits the final
// transcript, applies the minimum-content gate and opens the answer relay.
func (c *Controller) finalize(ctx context.Context, gen uint64) {
	aggregate := c.sched.Aggregate()
	words := scheduler.Words(aggregate)
	logger := logging.WithTurn(c.id, gen).With().Int("words", words).Logger()

	if err := c.sender.SendFinal(aggregate); err != nil {
		logger.Warn().Err(err).Msg("final transcript delivery failed")
	}
	c.publishFinal(ctx, gen, aggregate, words)

	if words < c.minFinalWords {
		logger.Info().Msg("turn below minimum content, skipping answer")
		c.metrics.TurnsFinalized.WithLabelValues(outcomeInsufficientWords).Inc()

		reason, _ := json.Marshal(models.DoneReason{Reason: outcomeInsufficientWords, WordTotal: words})
		c.sendAnswerEvent(answer.EventDone, models.StructuredPayload(reason))
		c.publishAnswer(ctx, outcomeInsufficientWords, outcomeInsufficientWords)
		c.lifecycle.Complete()
		return
	}

	if err := c.lifecycle.Await(); err != nil {
		// The turn was superseded between barrier and finalize.
		logger.Debug().Err(err).Msg("finalize abandoned")
		return
	}

	c.mu.Lock()
	sessionID := c.answerSessionID
	c.mu.Unlock()

	emit := func(event string, data models.Payload) {
		if c.staleGeneration(gen) {
			return
		}
		c.sendAnswerEvent(event, data)
	}
	settled := func(outcome string) { c.relaySettled(ctx, gen, outcome) }

	if err := c.relay.Open(ctx, sessionID, aggregate, emit, settled); err != nil {
		logger.Error().Err(err).Msg("answer stream open failed")
		c.metrics.TurnsFinalized.WithLabelValues(outcomeError).Inc()
		c.sendAnswerEvent(answer.EventError, models.TextPayload("answer stream unavailable"))
		c.publishAnswer(ctx, outcomeError, "stream open failed")
		c.lifecycle.Fail()
	}
}

// relaySettled records the answer outcome once the relay finishes.
func (c *Controller) relaySettled(ctx context.Context, gen uint64, outcome string) {
	if outcome == relay.OutcomeSuperseded || c.staleGeneration(gen) {
		return
	}

	switch outcome {
	case relay.OutcomeDone:
		c.metrics.TurnsFinalized.WithLabelValues(outcomeAnswered).Inc()
		c.publishAnswer(ctx, relay.OutcomeDone, "")
		c.lifecycle.Complete()
	default:
		c.metrics.TurnsFinalized.WithLabelValues(outcomeError).Inc()
		c.publishAnswer(ctx, relay.OutcomeError, "answer stream failed")
		c.lifecycle.Fail()
	}
	logger := logging.WithTurn(c.id, gen)
	logger.Info().Str("outcome", outcome).Msg("turn settled")
}

// handlePartial forwards an updated aggregate while the turn still accepts
// partials. The scheduler already applied the word threshold.
func (c *Controller) handlePartial(gen uint64, idx int, aggregate string) {
	if c.staleGeneration(gen) || !c.lifecycle.CanEmitPartial() {
		return
	}
	if err := c.sender.SendPartial(idx, aggregate); err != nil {
		logger := logging.WithTurn(c.id, gen)
		logger.Warn().Err(err).Msg("partial delivery failed")
	}
}

func (c *Controller) staleGeneration(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

func (c *Controller) sendAnswerEvent(event string, data models.Payload) {
	if err := c.sender.SendAnswerEvent(event, data); err != nil {
		logger := logging.WithSession(c.id)
		logger.Warn().Err(err).Str("event", event).Msg("answer event delivery failed")
	}
}

func (c *Controller) publishFinal(ctx context.Context, gen uint64, text string, words int) {
	if c.publisher == nil {
		return
	}
	evt := models.TurnFinal{
		EventID:       uuid.NewString(),
		EventType:     models.EventTypeTurnFinal,
		CorrelationID: c.id,
		Generation:    gen,
		Text:          text,
		WordCount:     words,
		Timestamp:     time.Now().UnixMilli(),
	}
	if err := c.publisher.PublishTurnFinal(ctx, evt); err != nil {
		logger := logging.WithSession(c.id)
		logger.Warn().Err(err).Msg("turn final publish failed")
	}
}

func (c *Controller) publishAnswer(ctx context.Context, outcome, reason string) {
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	sessionID := c.answerSessionID
	c.mu.Unlock()

	evt := models.TurnAnswer{
		EventID:         uuid.NewString(),
		EventType:       models.EventTypeTurnAnswer,
		CorrelationID:   c.id,
		AnswerSessionID: sessionID,
		Outcome:         outcome,
		Reason:          reason,
		Timestamp:       time.Now().UnixMilli(),
	}
	if err := c.publisher.PublishTurnAnswer(ctx, evt); err != nil {
		logger := logging.WithSession(c.id)
		logger.Warn().Err(err).Msg("turn answer publish failed")
	}
}
