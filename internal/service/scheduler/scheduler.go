// Package scheduler dispatches audio segments to the Transcription Engine
// and reconciles out-of-order completions into an ordered partial
// transcript.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/observability/metrics"
	"voicechat-orchestrator/internal/service/audio"
	"voicechat-orchestrator/internal/service/stt"
)

// PartialFunc receives an updated ordered aggregate once it passes the
// minimum-word threshold. idx is the highest sequence index that has
// contributed. Called without internal locks held.
type PartialFunc func(generation uint64, idx int, aggregate string)

// Scheduler runs one engine invocation per segment, bounded by a weighted
// semaphore, and collects completions keyed by sequence index. Completions
// stamped with a superseded generation are discarded silently.
type Scheduler struct {
	id              string
	engine          stt.Engine
	sem             *semaphore.Weighted
	minPartialWords int
	onPartial       PartialFunc
	metrics         *metrics.Metrics

	mu         sync.Mutex
	generation uint64
	results    map[int]string
	pending    int
	waiters    []chan struct{}
}

// New creates a Scheduler for one session. maxConcurrent bounds
// simultaneous engine calls; onPartial may be nil.
func New(id string, engine stt.Engine, maxConcurrent int64, minPartialWords int, onPartial PartialFunc) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		id:              id,
		engine:          engine,
		sem:             semaphore.NewWeighted(maxConcurrent),
		minPartialWords: minPartialWords,
		onPartial:       onPartial,
		metrics:         metrics.DefaultMetrics,
	}
}

// Reset clears collected results and adopts a new generation. Any jobs
// still in flight become stale; pending barrier waiters are released since
// the turn they watched no longer exists.
func (s *Scheduler) Reset(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = generation
	s.results = make(map[int]string)
	s.pending = 0
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// Schedule dispatches one segment to the engine and returns immediately.
// Segments stamped with a generation other than the current one are ignored.
func (s *Scheduler) Schedule(ctx context.Context, seg audio.Segment) {
	s.mu.Lock()
	if seg.Generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.pending++
	s.mu.Unlock()

	s.metrics.JobsScheduled.Inc()
	go s.run(ctx, seg)
}

// Barrier returns a channel that closes once every job of the current
// generation has settled. Closed immediately when nothing is outstanding.
func (s *Scheduler) Barrier() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	if s.pending == 0 {
		close(ch)
		return ch
	}
	s.waiters = append(s.waiters, ch)
	return ch
}

// Aggregate returns the ordered concatenation of all non-empty segment
// texts collected so far.
func (s *Scheduler) Aggregate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, _ := s.aggregateLocked()
	return agg
}

func (s *Scheduler) run(ctx context.Context, seg audio.Segment) {
	logger := logging.WithTurn(s.id, seg.Generation).With().
		Int("seq", seg.Seq).
		Str("provider", s.engine.Name()).
		Logger()

	var text string
	if err := s.sem.Acquire(ctx, 1); err != nil {
		// Shutdown before the job could start; settle as empty.
		s.settle(seg, "")
		return
	}
	start := time.Now()
	raw, err := s.engine.Transcribe(ctx, seg.PCM)
	s.sem.Release(1)
	s.metrics.TranscriptionLatency.WithLabelValues(s.engine.Name()).
		Observe(time.Since(start).Seconds())

	if err != nil {
		// A failed segment never aborts the turn; it contributes nothing.
		s.metrics.TranscriptionErrors.Inc()
		logger.Warn().Err(err).Msg("transcription failed, segment treated as empty")
	} else {
		text = Normalize(raw)
	}
	s.settle(seg, text)
}

// settle records one completion under the session lock discipline, releases
// the barrier when the last current-generation job lands, and offers an
// updated partial transcript upward.
func (s *Scheduler) settle(seg audio.Segment, text string) {
	s.mu.Lock()
	if seg.Generation != s.generation {
		s.mu.Unlock()
		// Stale completion, not an error and not user-visible.
		s.metrics.JobsStale.Inc()
		return
	}
	s.results[seg.Seq] = text
	if s.pending > 0 {
		s.pending--
	}
	drained := s.pending == 0
	var waiters []chan struct{}
	if drained {
		waiters = s.waiters
		s.waiters = nil
	}
	aggregate, maxIdx := s.aggregateLocked()
	gen := s.generation
	s.mu.Unlock()

	// Offer the partial before releasing the barrier so no partial ever
	// trails the final transcript.
	if text != "" && s.onPartial != nil && Words(aggregate) >= s.minPartialWords {
		s.onPartial(gen, maxIdx, aggregate)
	}

	for _, w := range waiters {
		close(w)
	}
}

// aggregateLocked joins non-empty texts in ascending sequence order.
// Caller must hold mu.
func (s *Scheduler) aggregateLocked() (string, int) {
	if len(s.results) == 0 {
		return "", -1
	}
	idxs := make([]int, 0, len(s.results))
	for i := range s.results {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	maxIdx := idxs[len(idxs)-1]
	parts := make([]string, 0, len(idxs))
	for _, i := range idxs {
		if t := s.results[i]; t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), maxIdx
}
