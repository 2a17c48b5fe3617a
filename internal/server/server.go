// Package server exposes the two per-session WebSocket channels: a JSON
// control channel and a binary audio channel, both keyed by correlation id.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/observability/metrics"
	"voicechat-orchestrator/internal/session"
)

const (
	writeTimeout = 5 * time.Second
	// Audio frames arrive well below this, but the default 32 KiB limit is
	// too tight for batched PCM.
	maxFrameBytes = 1 << 20
)

// Server hosts the session channels on one HTTP listener.
type Server struct {
	registry *session.Registry
	metrics  *metrics.Metrics
	http     *http.Server
}

// New creates the server listening on addr.
func New(addr string, registry *session.Registry) *Server {
	s := &Server{
		registry: registry,
		metrics:  metrics.DefaultMetrics,
	}
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/ws", func(r chi.Router) {
		r.Get("/control/{correlationId}", s.handleControl)
		r.Get("/audio/{correlationId}", s.handleAudio)
	})

	return r
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	logger := logging.WithComponent("server")
	logger.Info().Str("addr", s.http.Addr).Msg("session server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// controlSender writes server-to-client messages on the control socket.
// A mutex serializes writers; the relay and the finalize goroutine both
// send through here.
type controlSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *controlSender) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *controlSender) SendAck(answerSessionID string) error {
	return c.send(models.Ack{Type: models.TypeAck, SessionID: answerSessionID})
}

func (c *controlSender) SendPartial(idx int, text string) error {
	return c.send(models.PartialASR{Type: models.TypePartialASR, Idx: idx, Text: text})
}

func (c *controlSender) SendFinal(text string) error {
	return c.send(models.FinalASR{Type: models.TypeFinalASR, Text: text})
}

func (c *controlSender) SendAnswerEvent(event string, data models.Payload) error {
	return c.send(models.LLMEvent{Type: models.TypeLLM, Event: event, Data: data})
}

// handleControl runs the control channel read loop: start and end commands
// in, everything else logged and ignored.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "correlationId")
	if id == "" {
		http.Error(w, "missing correlation id", http.StatusBadRequest)
		return
	}
	logger := logging.WithSession(id)

	sess, err := s.registry.Attach(id, session.ChannelControl)
	if err != nil {
		logger.Warn().Err(err).Msg("control attach rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.registry.Detach(id, session.ChannelControl)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("control upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "teardown")
	conn.SetReadLimit(maxFrameBytes)

	sess.Outbox.Bind(&controlSender{conn: conn})
	logger.Info().Msg("control channel open")

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			logger.Info().Err(err).Msg("control channel closed")
			return
		}
		if typ != websocket.MessageText {
			s.metrics.ProtocolErrors.Inc()
			logger.Warn().Msg("non-text frame on control channel ignored")
			continue
		}

		var cmd models.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.metrics.ProtocolErrors.Inc()
			logger.Warn().Err(err).Msg("malformed control message ignored")
			continue
		}

		switch cmd.Type {
		case models.TypeStart:
			sess.Controller.Start(ctx)
		case models.TypeEnd:
			sess.Controller.End(ctx)
		default:
			s.metrics.ProtocolErrors.Inc()
			logger.Warn().Str("type", cmd.Type).Msg("unknown control message ignored")
		}
	}
}

// handleAudio runs the audio channel read loop: binary PCM frames into the
// session's receiver, anything else dropped.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "correlationId")
	if id == "" {
		http.Error(w, "missing correlation id", http.StatusBadRequest)
		return
	}
	logger := logging.WithSession(id)

	sess, err := s.registry.Attach(id, session.ChannelAudio)
	if err != nil {
		logger.Warn().Err(err).Msg("audio attach rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.registry.Detach(id, session.ChannelAudio)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("audio upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "teardown")
	conn.SetReadLimit(maxFrameBytes)

	logger.Info().Msg("audio channel open")

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			logger.Info().Err(err).Msg("audio channel closed")
			return
		}
		if typ != websocket.MessageBinary {
			s.metrics.ProtocolErrors.Inc()
			logger.Warn().Msg("non-binary frame on audio channel dropped")
			continue
		}
		sess.Controller.Ingest(ctx, data)
	}
}
