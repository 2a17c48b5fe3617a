// Package session tracks live voice sessions keyed by correlation id and
// wires each one's turn machinery to its transport channels.
package session

import (
	"errors"
	"fmt"
	"sync"

	"voicechat-orchestrator/internal/answer"
	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/observability/metrics"
	"voicechat-orchestrator/internal/service/stt"
	"voicechat-orchestrator/internal/service/turn"
)

// Channel identifies one of a session's two transport attachments.
type Channel int

const (
	ChannelControl Channel = iota
	ChannelAudio
)

// String returns the string representation of the channel.
func (c Channel) String() string {
	switch c {
	case ChannelControl:
		return "control"
	case ChannelAudio:
		return "audio"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", c)
	}
}

// Errors surfaced to the transport layer.
var (
	ErrChannelAttached = errors.New("channel already attached for this correlation id")
	ErrControlDetached = errors.New("control channel not attached")
)

// Outbox implements turn.Sender with a rebindable target, so the turn
// machinery can exist before the control channel attaches and survive its
// reconnects. Sends without a bound target fail with ErrControlDetached.
type Outbox struct {
	mu     sync.Mutex
	target turn.Sender
}

// Bind points the outbox at a live control-channel writer.
func (o *Outbox) Bind(target turn.Sender) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = target
}

// Unbind drops the current writer.
func (o *Outbox) Unbind() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = nil
}

func (o *Outbox) current() (turn.Sender, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.target == nil {
		return nil, ErrControlDetached
	}
	return o.target, nil
}

func (o *Outbox) SendAck(answerSessionID string) error {
	t, err := o.current()
	if err != nil {
		return err
	}
	return t.SendAck(answerSessionID)
}

func (o *Outbox) SendPartial(idx int, text string) error {
	t, err := o.current()
	if err != nil {
		return err
	}
	return t.SendPartial(idx, text)
}

func (o *Outbox) SendFinal(text string) error {
	t, err := o.current()
	if err != nil {
		return err
	}
	return t.SendFinal(text)
}

func (o *Outbox) SendAnswerEvent(event string, data models.Payload) error {
	t, err := o.current()
	if err != nil {
		return err
	}
	return t.SendAnswerEvent(event, data)
}

// Session is one live voice session. It exists from the first channel
// attach until both channels have detached.
type Session struct {
	ID         string
	Controller *turn.Controller
	Outbox     *Outbox

	mu       sync.Mutex
	attached map[Channel]bool
}

// Options configures the registry's per-session wiring.
type Options struct {
	Engine    stt.Engine
	Answers   answer.Service
	Publisher turn.Publisher
	Turn      turn.Options
}

// Registry is the concurrent session map. One session per correlation id;
// each of the two channels attaches at most once.
type Registry struct {
	opts    Options
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*Session),
	}
}

// Attach returns the session for the correlation id, creating it on the
// first attach of either channel. Attaching an already-attached channel is
// an error; the caller rejects the connection.
func (r *Registry) Attach(id string, ch Channel) (*Session, error) {
	logger := logging.WithSession(id)

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		outbox := &Outbox{}
		s = &Session{
			ID:         id,
			Controller: turn.NewController(id, r.opts.Engine, r.opts.Answers, outbox, r.opts.Publisher, r.opts.Turn),
			Outbox:     outbox,
			attached:   make(map[Channel]bool),
		}
		r.sessions[id] = s
		r.metrics.SessionsTotal.Inc()
		r.metrics.SessionsActive.Inc()
		logger.Info().Msg("session created")
	}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached[ch] {
		return nil, fmt.Errorf("%s: %w", ch, ErrChannelAttached)
	}
	s.attached[ch] = true
	logger.Debug().Str("channel", ch.String()).Msg("channel attached")
	return s, nil
}

// Detach releases one channel. When the last channel detaches the session
// is torn down and removed.
func (r *Registry) Detach(id string, ch Channel) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.attached, ch)
	if ch == ChannelControl {
		s.Outbox.Unbind()
	}
	empty := len(s.attached) == 0
	s.mu.Unlock()

	logger := logging.WithSession(id)
	logger.Debug().Str("channel", ch.String()).Msg("channel detached")
	if !empty {
		return
	}

	r.mu.Lock()
	// Re-check under the registry lock; a racing attach may have revived it.
	s.mu.Lock()
	if len(s.attached) == 0 {
		delete(r.sessions, id)
		s.mu.Unlock()
		r.mu.Unlock()
		s.Controller.Close()
		r.metrics.SessionsActive.Dec()
		logger.Info().Msg("session destroyed")
		return
	}
	s.mu.Unlock()
	r.mu.Unlock()
}

// Get returns the session for the correlation id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every live session. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Controller.Close()
		r.metrics.SessionsActive.Dec()
	}
}
