// Package mock provides a scripted Transcription Engine for local runs and
// tests without cloud credentials. It cycles through canned segment results,
// including the noise-token outputs a real engine produces on non-speech
// audio.
package mock

import (
	"context"
	"sync"
)

// DefaultScript provides sample per-segment results. Noise-only entries are
// deliberate; normalization upstream must map them to empty text.
var DefaultScript = []string{
	"hello there I was wondering",
	"if you could help me with my account",
	"[background noise]",
	"I have been locked out since yesterday",
	"(silence)",
	"thank you very much",
}

// Engine implements stt.Engine with scripted responses.
type Engine struct {
	mu     sync.Mutex
	script []string
	next   int
	closed bool
}

// New creates a mock engine over DefaultScript.
func New() *Engine {
	return NewScripted(DefaultScript)
}

// NewScripted creates a mock engine that returns the given results in order,
// cycling when exhausted.
func NewScripted(script []string) *Engine {
	s := make([]string, len(script))
	copy(s, script)
	return &Engine{script: s}
}

// Transcribe returns the next scripted result. Empty input transcribes to
// empty text, like a real engine fed silence.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || len(e.script) == 0 || len(pcm) == 0 {
		return "", nil
	}
	text := e.script[e.next%len(e.script)]
	e.next++
	return text, nil
}

// Name identifies the provider.
func (e *Engine) Name() string { return "mock" }

// Close marks the engine closed; further calls return empty text.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
