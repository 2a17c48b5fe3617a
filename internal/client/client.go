package client

import (
	"encoding/json"
	"sync"
	"time"

	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
)

// Link is the client's view of the two session channels.
type Link interface {
	SendStart() error
	SendEnd() error
	SendAudio(frame []byte) error
	Close() error
}

// TranscriptFunc receives newly-added transcript text. final marks the
// closing delta of a turn.
type TranscriptFunc func(delta string, final bool)

// Config tunes the call state machine.
type Config struct {
	VADThreshold    float64
	SilenceDuration time.Duration
	FrameDuration   time.Duration
	MinVoicedFrames int
	OnTranscript    TranscriptFunc
}

// DefaultConfig returns the standard endpointing parameters for 20 ms
// frames.
func DefaultConfig() Config {
	return Config{
		VADThreshold:    DefaultVADThreshold,
		SilenceDuration: 1500 * time.Millisecond,
		FrameDuration:   20 * time.Millisecond,
		MinVoicedFrames: 5,
	}
}

// Client drives one call. Microphone frames go in through PushFrame,
// control-channel messages through HandleMessage; the machine decides when
// a turn starts, when silence ends it, and when playback must stop for
// barge-in.
//
// Silence only ends a turn that actually contained voice: a turn with
// fewer voiced frames than MinVoicedFrames keeps listening.
type Client struct {
	link   Link
	speech SpeechOutput
	vad    *Detector
	cfg    Config

	mu             sync.Mutex
	state          State
	inTurn         bool
	endPending     bool
	voicedFrames   int
	silence        time.Duration
	lastTranscript string
	sessionID      string
}

// New creates a Client over an established link.
func New(link Link, speech SpeechOutput, cfg Config) *Client {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 1500 * time.Millisecond
	}
	if cfg.MinVoicedFrames <= 0 {
		cfg.MinVoicedFrames = 5
	}
	if speech == nil {
		speech = LogSpeech{}
	}
	return &Client{
		link:   link,
		speech: speech,
		vad:    NewDetector(cfg.VADThreshold),
		cfg:    cfg,
		state:  StateConnecting,
	}
}

// Begin marks the channels as established and starts listening.
func (c *Client) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateInCall
}

// State returns the current call state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the answer session id from the last ack.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// PushFrame feeds one microphone frame through the machine. Frames are
// assumed to span cfg.FrameDuration of audio.
func (c *Client) PushFrame(frame []byte) {
	voiced := c.vad.Voiced(frame)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateInCall, StateEnding:
	default:
		// Voice while awaiting a response opens no segment and never
		// leaves PROCESSING.
		return
	}

	logger := logging.WithComponent("client")

	// A previously failed end is retried before anything else; the turn is
	// already over, its audio window closed.
	if c.endPending {
		c.trySendEndLocked()
		return
	}

	// Barge-in: first voice after silence stops any playing answer.
	if voiced && c.state == StateInCall && (!c.inTurn || c.silence > 0) {
		c.speech.Cancel()
	}

	if !c.inTurn {
		if !voiced || c.state == StateEnding {
			return
		}
		if err := c.link.SendStart(); err != nil {
			logger.Warn().Err(err).Msg("start not delivered")
			return
		}
		c.inTurn = true
		c.voicedFrames = 0
		c.silence = 0
		c.lastTranscript = ""
	}

	if err := c.link.SendAudio(frame); err != nil {
		logger.Warn().Err(err).Msg("audio frame dropped")
	}

	if voiced {
		c.voicedFrames++
		c.silence = 0
		return
	}
	c.silence += c.cfg.FrameDuration
	if c.silence >= c.cfg.SilenceDuration && c.voicedFrames >= c.cfg.MinVoicedFrames {
		c.trySendEndLocked()
	}
}

// trySendEndLocked ends the turn, keeping endPending set until the command
// actually makes it out. Caller holds mu.
func (c *Client) trySendEndLocked() {
	if err := c.link.SendEnd(); err != nil {
		c.endPending = true
		logger := logging.WithComponent("client")
		logger.Warn().Err(err).Msg("end not delivered, will retry")
		return
	}
	c.endPending = false
	c.inTurn = false
	if c.state == StateInCall {
		c.state = StateProcessing
	}
}

// HandleMessage processes one control-channel message from the server.
func (c *Client) HandleMessage(data []byte) {
	var head struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
		ID    string          `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		logger := logging.WithComponent("client")
		logger.Warn().Err(err).Msg("malformed server message")
		return
	}

	switch head.Type {
	case models.TypeAck:
		c.mu.Lock()
		c.sessionID = head.ID
		c.mu.Unlock()
	case models.TypePartialASR:
		c.emitDelta(head.Text, false)
	case models.TypeFinalASR:
		c.emitDelta(head.Text, true)
	case models.TypeLLM:
		c.handleAnswerEvent(head.Event, head.Data)
	}
}

func (c *Client) emitDelta(text string, final bool) {
	c.mu.Lock()
	delta := Delta(c.lastTranscript, text)
	if final {
		c.lastTranscript = ""
	} else {
		c.lastTranscript = text
	}
	fn := c.cfg.OnTranscript
	c.mu.Unlock()

	if fn != nil && (delta != "" || final) {
		fn(delta, final)
	}
}

func (c *Client) handleAnswerEvent(event string, data json.RawMessage) {
	switch event {
	case "opener", "final":
		if text := answerText(data); text != "" {
			c.speech.Speak(text)
		}
	case "done", "error":
		c.mu.Lock()
		ending := c.state == StateEnding
		if c.state == StateProcessing {
			c.state = StateInCall
		}
		c.mu.Unlock()
		if ending {
			c.shutdown()
		}
	}
}

// EndCall tears the call down. With a turn still in flight the machine
// waits in ENDING for the answer stream to resolve before closing.
func (c *Client) EndCall() {
	c.mu.Lock()
	busy := c.inTurn || c.endPending || c.state == StateProcessing
	if busy {
		if c.inTurn && !c.endPending {
			c.trySendEndLocked()
		}
		c.state = StateEnding
		c.mu.Unlock()
		logger := logging.WithComponent("client")
		logger.Info().Msg("ending after in-flight turn")
		return
	}
	c.mu.Unlock()
	c.shutdown()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	if err := c.link.Close(); err != nil {
		logger := logging.WithComponent("client")
		logger.Warn().Err(err).Msg("link close failed")
	}
}

// answerText extracts readable text from an answer event payload: either a
// bare JSON string or an object with a "text" field.
func answerText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Text
	}
	return ""
}
