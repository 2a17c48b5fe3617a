// Package httpstt provides a Transcription Engine backed by a generic HTTP
// transcription endpoint (whisper-server style): the segment is posted as a
// WAV file and the response carries the recognized text as JSON.
package httpstt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"voicechat-orchestrator/internal/service/stt"
)

// Config contains HTTP engine configuration.
type Config struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	SampleRateHz int
}

// Engine implements stt.Engine over HTTP.
type Engine struct {
	cfg    Config
	client *http.Client
}

var _ stt.Engine = (*Engine)(nil)

// response is the JSON body returned by the transcription endpoint.
type response struct {
	Text string `json:"text"`
}

// New creates a new HTTP engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("httpstt: endpoint must not be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 16000
	}
	return &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Transcribe posts the segment as a multipart WAV upload and decodes the
// recognized text from the JSON response.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", fmt.Errorf("httpstt: create form file: %w", err)
	}
	if _, err := fw.Write(wavHeader(len(pcm), e.cfg.SampleRateHz)); err != nil {
		return "", fmt.Errorf("httpstt: write wav header: %w", err)
	}
	if _, err := fw.Write(pcm); err != nil {
		return "", fmt.Errorf("httpstt: write pcm: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("httpstt: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("httpstt: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpstt: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("httpstt: status %d: %s", resp.StatusCode, string(b))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("httpstt: decode response: %w", err)
	}
	return r.Text, nil
}

// Name identifies the provider.
func (e *Engine) Name() string { return "http" }

// Close is a no-op; the engine holds no persistent connections.
func (e *Engine) Close() error { return nil }

// wavHeader builds a 44-byte RIFF header for mono 16-bit PCM of the given
// payload length.
func wavHeader(dataLen, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}
