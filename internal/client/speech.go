package client

import "voicechat-orchestrator/internal/observability/logging"

// SpeechOutput plays answer text to the caller. Cancel must stop playback
// immediately; the state machine calls it on barge-in.
type SpeechOutput interface {
	Speak(text string)
	Cancel()
}

// LogSpeech is a SpeechOutput that only logs. Real synthesis lives on the
// caller's side of the wire.
type LogSpeech struct{}

func (LogSpeech) Speak(text string) {
	logger := logging.WithComponent("speech")
	logger.Info().Str("text", text).Msg("speaking")
}

func (LogSpeech) Cancel() {
	logger := logging.WithComponent("speech")
	logger.Info().Msg("speech cancelled")
}
