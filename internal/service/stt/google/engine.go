// Package google provides a Google Cloud Speech-to-Text Transcription
// Engine. Segments are complete utterance slices, so the synchronous
// Recognize API is used rather than a streaming session.
package google

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"voicechat-orchestrator/internal/service/stt"
)

// Engine implements stt.Engine using Google Cloud Speech-to-Text.
type Engine struct {
	client       *speech.Client
	languageCode string
	sampleRateHz int
}

var _ stt.Engine = (*Engine)(nil)

// New creates a new Google engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, languageCode string, sampleRateHz int) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	if sampleRateHz == 0 {
		sampleRateHz = 16000
	}
	return &Engine{
		client:       c,
		languageCode: languageCode,
		sampleRateHz: sampleRateHz,
	}, nil
}

// Transcribe performs one synchronous recognition over the segment and
// returns the top alternative of the first result, or empty text when
// nothing was recognized.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	resp, err := e.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(e.sampleRateHz),
			LanguageCode:    e.languageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return "", err
	}
	for _, r := range resp.Results {
		if len(r.Alternatives) > 0 {
			return r.Alternatives[0].Transcript, nil
		}
	}
	return "", nil
}

// Name identifies the provider.
func (e *Engine) Name() string { return "google" }

// Close releases the underlying client.
func (e *Engine) Close() error {
	return e.client.Close()
}
