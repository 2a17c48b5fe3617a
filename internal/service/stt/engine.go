// Package stt defines the interface for Transcription Engine providers.
package stt

import "context"

// Engine transcribes one complete audio segment. Input is raw mono 16 kHz
// 16-bit little-endian PCM. The returned text may be empty, may contain
// noise annotations, and is normalized by the caller.
type Engine interface {
	// Transcribe recognizes speech in pcm and returns the raw text.
	Transcribe(ctx context.Context, pcm []byte) (string, error)

	// Name identifies the provider for logs and metrics.
	Name() string

	// Close releases provider resources.
	Close() error
}
