package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"voicechat-orchestrator/internal/models"
	"voicechat-orchestrator/internal/observability/logging"
)

const dialTimeout = 10 * time.Second

// WSLink connects the two session channels to a running orchestrator.
type WSLink struct {
	control *websocket.Conn
	audio   *websocket.Conn
	cancel  context.CancelFunc

	mu sync.Mutex // serializes control writes
}

// Dial establishes both channels for the correlation id and pumps incoming
// control messages into onMessage until the connection closes.
func Dial(ctx context.Context, baseURL, correlationID string, onMessage func([]byte)) (*WSLink, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	control, _, err := websocket.Dial(dialCtx, fmt.Sprintf("%s/v1/ws/control/%s", baseURL, correlationID), nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial control channel: %w", err)
	}
	audio, _, err := websocket.Dial(dialCtx, fmt.Sprintf("%s/v1/ws/audio/%s", baseURL, correlationID), nil)
	if err != nil {
		control.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("client: dial audio channel: %w", err)
	}

	readCtx, readCancel := context.WithCancel(ctx)
	l := &WSLink{
		control: control,
		audio:   audio,
		cancel:  readCancel,
	}

	go func() {
		logger := logging.WithComponent("client")
		for {
			typ, data, err := control.Read(readCtx)
			if err != nil {
				logger.Debug().Err(err).Msg("control read loop ended")
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			if onMessage != nil {
				onMessage(data)
			}
		}
	}()

	return l, nil
}

func (l *WSLink) sendCommand(cmdType string) error {
	payload, err := json.Marshal(models.Command{Type: cmdType})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.control.Write(ctx, websocket.MessageText, payload)
}

func (l *WSLink) SendStart() error { return l.sendCommand(models.TypeStart) }

func (l *WSLink) SendEnd() error { return l.sendCommand(models.TypeEnd) }

func (l *WSLink) SendAudio(frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.audio.Write(ctx, websocket.MessageBinary, frame)
}

// Close shuts both channels down.
func (l *WSLink) Close() error {
	l.cancel()
	err := l.control.Close(websocket.StatusNormalClosure, "")
	if e := l.audio.Close(websocket.StatusNormalClosure, ""); err == nil {
		err = e
	}
	return err
}
