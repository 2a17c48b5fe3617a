// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string // Service identity used in logs and event headers
	HTTPPort  string // Port for the WebSocket/API server
	ObsPort   string // Port for the observability server (/metrics, /healthz)
}

// AudioConfig holds audio-format and segmentation settings.
type AudioConfig struct {
	SampleRateHz    int           // Expected PCM sample rate (mono 16-bit LE)
	SegmentDuration time.Duration // Duration of one transcription segment
}

// SegmentBytes returns the size in bytes of one full segment
// (16-bit mono samples, 2 bytes each).
func (a AudioConfig) SegmentBytes() int {
	return int(a.SegmentDuration.Seconds() * float64(a.SampleRateHz) * 2)
}

// TurnConfig holds turn-level thresholds.
type TurnConfig struct {
	MinFinalWords   int           // Below this, no Answer Service query is made
	MinPartialWords int           // Partial transcripts shorter than this are suppressed
	SilenceDuration time.Duration // Client-side endpointing threshold
}

// STTConfig holds Transcription Engine settings.
type STTConfig struct {
	Provider      string // "mock", "google" or "http"
	LanguageCode  string
	HTTPEndpoint  string // Endpoint for the "http" provider
	MaxConcurrent int64  // Upper bound on concurrent engine invocations
}

// AnswerConfig holds Answer Service settings.
type AnswerConfig struct {
	BaseURL string
	Timeout time.Duration // Applies to session creation only; streams have no timeout
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	TopicFinal string // Final turn transcripts
	TopicTurn  string // Turn outcome events (answer done/error)
	Principal  string
}

// Configuration is the full service configuration.
type Configuration struct {
	Service ServiceConfig
	Audio   AudioConfig
	Turn    TurnConfig
	STT     STTConfig
	Answer  AnswerConfig
	Kafka   KafkaConfig
}

// Load reads configuration from the environment, applying defaults.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-voicechat-orchestrator"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			ObsPort:   envOrDefault("OBS_PORT", "9090"),
		},
		Audio: AudioConfig{
			SampleRateHz:    envInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			SegmentDuration: envDuration("AUDIO_SEGMENT_DURATION", 8000*time.Millisecond),
		},
		Turn: TurnConfig{
			MinFinalWords:   envInt("TURN_MIN_FINAL_WORDS", 5),
			MinPartialWords: envInt("TURN_MIN_PARTIAL_WORDS", 5),
			SilenceDuration: envDuration("TURN_SILENCE_DURATION", 1500*time.Millisecond),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			HTTPEndpoint:  envOrDefault("STT_HTTP_ENDPOINT", ""),
			MaxConcurrent: int64(envInt("STT_MAX_CONCURRENT", 4)),
		},
		Answer: AnswerConfig{
			BaseURL: envOrDefault("ANSWER_BASE_URL", "http://localhost:8000"),
			Timeout: envDuration("ANSWER_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:    envBool("KAFKA_ENABLED", false),
			Brokers:    envList("KAFKA_BROKERS", nil),
			TopicFinal: envOrDefault("KAFKA_TOPIC_FINAL", "voice.turn.final"),
			TopicTurn:  envOrDefault("KAFKA_TOPIC_TURN", "voice.turn.answer"),
			Principal:  envOrDefault("SERVICE_PRINCIPAL", "svc-voicechat-orchestrator"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go duration strings ("8s", "1500ms") or a bare
// number of milliseconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
