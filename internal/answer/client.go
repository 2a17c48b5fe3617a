// Package answer provides the HTTP client for the external
// retrieval-augmented Answer Service: session creation plus the streamed
// query interface used by the Answer Relay.
package answer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voicechat-orchestrator/internal/models"
)

// Event names emitted by the Answer Service stream.
const (
	EventOpen   = "open"
	EventOpener = "opener"
	EventFinal  = "final"
	EventError  = "error"
	EventDone   = "done"
)

// Event is one named stream event with its decoded payload.
type Event struct {
	Name string
	Data models.Payload
}

// EventStream is one open query stream: ordered events plus teardown.
type EventStream interface {
	Events() <-chan Event
	Close() error
}

// Service is the Answer Service interface consumed by the Turn Controller
// and the Answer Relay.
type Service interface {
	CreateSession(ctx context.Context) (string, error)
	StreamQuery(ctx context.Context, sessionID, text string) (EventStream, error)
}

// Client talks to the Answer Service over HTTP. Session creation uses a
// bounded timeout; query streams have none, stream failures surface as
// error events or connection close.
type Client struct {
	baseURL   string
	session   *http.Client
	streaming *http.Client
}

var _ Service = (*Client)(nil)

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, sessionTimeout time.Duration) *Client {
	if sessionTimeout == 0 {
		sessionTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		session:   &http.Client{Timeout: sessionTimeout},
		streaming: &http.Client{},
	}
}

// CreateSession requests a new conversation session.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", nil)
	if err != nil {
		return "", fmt.Errorf("answer: build session request: %w", err)
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer: create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("answer: create session: status %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("answer: decode session response: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("answer: create session: empty session id")
	}
	return body.ID, nil
}

// Stream is one open query stream. Events arrive on Events in upstream
// order; the channel closes when the stream ends. Close tears the stream
// down and is safe to call more than once.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

// Events returns the ordered event channel.
func (s *Stream) Events() <-chan Event { return s.events }

// Close aborts the underlying request. The events channel closes shortly
// after.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// StreamQuery opens one streamed query (server-sent events) for the given
// session and transcript.
func (c *Client) StreamQuery(ctx context.Context, sessionID, text string) (EventStream, error) {
	u := fmt.Sprintf("%s/sessions/%s/message-stream?q=%s",
		c.baseURL, url.PathEscape(sessionID), url.QueryEscape(text))

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("answer: build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streaming.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("answer: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("answer: open stream: status %d", resp.StatusCode)
	}

	s := &Stream{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go s.read(resp.Body, sessionID)
	return s, nil
}

// read decodes the server-sent event stream. Each event consists of
// "event:" and "data:" lines terminated by a blank line; payloads that are
// not valid JSON are forwarded verbatim as text, never dropped.
func (s *Stream) read(body io.ReadCloser, sessionID string) {
	defer close(s.events)
	defer body.Close()

	logger := log.With().Str("answerSessionId", sessionID).Logger()

	var name string
	var data []string
	flush := func() {
		if name == "" && len(data) == 0 {
			return
		}
		if name == "" {
			name = "message"
		}
		s.events <- Event{
			Name: name,
			Data: models.PayloadFrom([]byte(strings.Join(data, "\n"))),
		}
		name = ""
		data = nil
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sawDone := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == EventDone {
				sawDone = true
			}
			flush()
			if sawDone {
				return
			}
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	// Dispatch a trailing event that was not blank-line terminated.
	if name == EventDone {
		sawDone = true
	}
	flush()

	if err := scanner.Err(); err != nil && !sawDone {
		logger.Warn().Err(err).Msg("answer stream read error")
		s.events <- Event{Name: EventError, Data: models.TextPayload(err.Error())}
	}
}
