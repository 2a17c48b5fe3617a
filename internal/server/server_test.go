package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"voicechat-orchestrator/internal/answer"
	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/service/turn"
	"voicechat-orchestrator/internal/session"
)

type fixedEngine struct{ text string }

func (e fixedEngine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return e.text, nil
}
func (e fixedEngine) Name() string { return "fixed" }
func (e fixedEngine) Close() error { return nil }

type scriptedAnswers struct{ events []answer.Event }

func (a scriptedAnswers) CreateSession(ctx context.Context) (string, error) {
	return "sess_ws", nil
}

func (a scriptedAnswers) StreamQuery(ctx context.Context, sessionID, text string) (answer.EventStream, error) {
	ch := make(chan answer.Event, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return scriptedStream{ch}, nil
}

type scriptedStream struct{ ch chan answer.Event }

func (s scriptedStream) Events() <-chan answer.Event { return s.ch }
func (s scriptedStream) Close() error                { return nil }

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	reg := session.NewRegistry(session.Options{
		Engine: fixedEngine{text: "hello there how are you today"},
		Answers: scriptedAnswers{events: []answer.Event{
			{Name: answer.EventOpener, Data: models.TextPayload("one moment")},
			{Name: answer.EventFinal, Data: models.TextPayload("doing fine")},
			{Name: answer.EventDone},
		}},
		Turn: turn.Options{
			SegmentBytes:    4,
			MaxConcurrent:   2,
			MinPartialWords: 5,
			MinFinalWords:   5,
		},
	})
	s := New("127.0.0.1:0", reg)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_EndToEndTurn(t *testing.T) {
	_, wsURL := newTestServer(t)

	control := dial(t, wsURL+"/v1/ws/control/corr-1")
	defer control.Close(websocket.StatusNormalClosure, "")
	audio := dial(t, wsURL+"/v1/ws/audio/corr-1")
	defer audio.Close(websocket.StatusNormalClosure, "")

	writeText(t, control, `{"type":"start"}`)
	ack := readMessage(t, control)
	if ack["type"] != "ack" || ack["sessionId"] != "sess_ws" {
		t.Fatalf("unexpected ack %v", ack)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// One full 4-byte segment plus a trailing remainder.
	if err := audio.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("audio write: %v", err)
	}

	// The partial proves the segment crossed the audio socket; only then is
	// it safe to end the turn from the other socket.
	partial := readMessage(t, control)
	if partial["type"] != "partial_asr" {
		t.Fatalf("expected partial_asr, got %v", partial)
	}
	writeText(t, control, `{"type":"end"}`)

	var finalText string
	var llmEvents []string
	for {
		msg := readMessage(t, control)
		switch msg["type"] {
		case "partial_asr":
			// The trailing segment may still land while finalizing.
		case "final_asr":
			finalText, _ = msg["text"].(string)
		case "llm":
			ev, _ := msg["event"].(string)
			llmEvents = append(llmEvents, ev)
			if ev == "done" || ev == "error" {
				goto settled
			}
		default:
			t.Fatalf("unexpected message %v", msg)
		}
	}
settled:

	wantFinal := "hello there how are you today hello there how are you today"
	if finalText != wantFinal {
		t.Errorf("unexpected final transcript %q", finalText)
	}
	want := []string{"open", "opener", "final", "done"}
	if len(llmEvents) != len(want) {
		t.Fatalf("expected llm events %v, got %v", want, llmEvents)
	}
	for i := range want {
		if llmEvents[i] != want[i] {
			t.Errorf("llm event %d: expected %s, got %s", i, want[i], llmEvents[i])
		}
	}
}

func TestServer_DuplicateControlChannelRejected(t *testing.T) {
	_, wsURL := newTestServer(t)

	control := dial(t, wsURL+"/v1/ws/control/corr-1")
	defer control.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := websocket.Dial(ctx, wsURL+"/v1/ws/control/corr-1", nil); err == nil {
		t.Fatal("expected second control attach to be rejected")
	}
}

func TestServer_MalformedControlFramesIgnored(t *testing.T) {
	_, wsURL := newTestServer(t)

	control := dial(t, wsURL+"/v1/ws/control/corr-1")
	defer control.Close(websocket.StatusNormalClosure, "")

	writeText(t, control, `this is not json`)
	writeText(t, control, `{"type":"mystery"}`)
	writeText(t, control, `{"type":"start"}`)

	ack := readMessage(t, control)
	if ack["type"] != "ack" {
		t.Fatalf("expected ack after malformed frames, got %v", ack)
	}
}

func TestServer_EndWithoutTurnIsNoop(t *testing.T) {
	_, wsURL := newTestServer(t)

	control := dial(t, wsURL+"/v1/ws/control/corr-1")
	defer control.Close(websocket.StatusNormalClosure, "")

	writeText(t, control, `{"type":"end"}`)
	writeText(t, control, `{"type":"start"}`)

	ack := readMessage(t, control)
	if ack["type"] != "ack" {
		t.Fatalf("expected ack, got %v", ack)
	}
}
