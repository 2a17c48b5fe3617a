package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voicechat-orchestrator/internal/service/audio"
)

// gateEngine blocks each Transcribe call until the test releases it, so
// completion order can be controlled precisely.
type gateEngine struct {
	mu      sync.Mutex
	replies map[int]chan reply // keyed by first payload byte (the seq marker)
}

type reply struct {
	text string
	err  error
}

func newGateEngine() *gateEngine {
	return &gateEngine{replies: make(map[int]chan reply)}
}

func (g *gateEngine) gate(seq int) chan reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.replies[seq]
	if !ok {
		ch = make(chan reply)
		g.replies[seq] = ch
	}
	return ch
}

func (g *gateEngine) release(seq int, text string, err error) {
	g.gate(seq) <- reply{text: text, err: err}
}

func (g *gateEngine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	r := <-g.gate(int(pcm[0]))
	return r.text, r.err
}

func (g *gateEngine) Name() string { return "gate" }
func (g *gateEngine) Close() error { return nil }

func seg(seq int, gen uint64) audio.Segment {
	return audio.Segment{Seq: seq, Generation: gen, PCM: []byte{byte(seq)}}
}

func waitBarrier(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Barrier():
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not settle")
	}
}

func TestScheduler_OrderedAggregateRegardlessOfCompletionOrder(t *testing.T) {
	eng := newGateEngine()
	s := New("sess-1", eng, 4, 1, nil)
	s.Reset(1)

	for i := 0; i < 3; i++ {
		s.Schedule(context.Background(), seg(i, 1))
	}

	// Complete in reverse order.
	eng.release(2, "third", nil)
	eng.release(1, "second part", nil)
	eng.release(0, "first", nil)
	waitBarrier(t, s)

	if got := s.Aggregate(); got != "first second part third" {
		t.Errorf("unexpected aggregate %q", got)
	}
}

func TestScheduler_StaleCompletionDiscarded(t *testing.T) {
	eng := newGateEngine()
	s := New("sess-1", eng, 4, 1, nil)
	s.Reset(1)

	s.Schedule(context.Background(), seg(0, 1))

	// Turn reset while the job is in flight.
	s.Reset(2)
	eng.release(0, "late words from the old turn", nil)

	// The new generation collects independently.
	s.Schedule(context.Background(), seg(0, 2))
	eng.release(0, "fresh", nil)
	waitBarrier(t, s)

	if got := s.Aggregate(); got != "fresh" {
		t.Errorf("expected only current-generation text, got %q", got)
	}
}

func TestScheduler_EngineErrorRecordsEmptyAndContinues(t *testing.T) {
	eng := newGateEngine()
	s := New("sess-1", eng, 4, 1, nil)
	s.Reset(1)

	s.Schedule(context.Background(), seg(0, 1))
	s.Schedule(context.Background(), seg(1, 1))
	eng.release(0, "", errors.New("engine exploded"))
	eng.release(1, "still here", nil)
	waitBarrier(t, s)

	if got := s.Aggregate(); got != "still here" {
		t.Errorf("expected failed segment to contribute nothing, got %q", got)
	}
}

func TestScheduler_NoiseSegmentsContributeNothing(t *testing.T) {
	eng := newGateEngine()
	s := New("sess-1", eng, 4, 1, nil)
	s.Reset(1)

	for i := 0; i < 3; i++ {
		s.Schedule(context.Background(), seg(i, 1))
	}
	eng.release(0, "[background noise]", nil)
	eng.release(1, "hello there how are", nil)
	eng.release(2, "noise.", nil)
	waitBarrier(t, s)

	if got := s.Aggregate(); got != "hello there how are" {
		t.Errorf("unexpected aggregate %q", got)
	}
}

func TestScheduler_PartialSuppressedBelowThreshold(t *testing.T) {
	eng := newGateEngine()

	var mu sync.Mutex
	var offers []string
	s := New("sess-1", eng, 4, 5, func(gen uint64, idx int, aggregate string) {
		mu.Lock()
		offers = append(offers, aggregate)
		mu.Unlock()
	})
	s.Reset(1)

	s.Schedule(context.Background(), seg(0, 1))
	eng.release(0, "too short", nil) // 2 words < 5
	waitBarrier(t, s)

	s.Schedule(context.Background(), seg(1, 1))
	eng.release(1, "now we have plenty of words", nil)
	waitBarrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(offers) != 1 {
		t.Fatalf("expected exactly one partial offer, got %d: %v", len(offers), offers)
	}
	if offers[0] != "too short now we have plenty of words" {
		t.Errorf("unexpected partial %q", offers[0])
	}
}

func TestScheduler_BarrierWaitsForAllCurrentGenerationJobs(t *testing.T) {
	eng := newGateEngine()
	s := New("sess-1", eng, 4, 1, nil)
	s.Reset(1)

	s.Schedule(context.Background(), seg(0, 1))
	s.Schedule(context.Background(), seg(1, 1))

	barrier := s.Barrier()
	eng.release(0, "a", nil)

	select {
	case <-barrier:
		t.Fatal("barrier settled with one job still outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	eng.release(1, "b", nil)
	select {
	case <-barrier:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not settle after last job")
	}
}

func TestScheduler_BarrierImmediateWhenIdle(t *testing.T) {
	s := New("sess-1", newGateEngine(), 4, 1, nil)
	s.Reset(1)

	select {
	case <-s.Barrier():
	case <-time.After(time.Second):
		t.Fatal("idle barrier should settle immediately")
	}
}
