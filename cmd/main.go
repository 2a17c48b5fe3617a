package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicechat-orchestrator/internal/answer"
	"voicechat-orchestrator/internal/config"
	"voicechat-orchestrator/internal/events"
	"voicechat-orchestrator/internal/observability"
	"voicechat-orchestrator/internal/observability/logging"
	"voicechat-orchestrator/internal/server"
	"voicechat-orchestrator/internal/service/stt"
	"voicechat-orchestrator/internal/service/stt/google"
	"voicechat-orchestrator/internal/service/stt/httpstt"
	"voicechat-orchestrator/internal/service/stt/mock"
	"voicechat-orchestrator/internal/service/turn"
	"voicechat-orchestrator/internal/session"
)

func main() {
	logCfg := logging.DefaultConfig()
	logCfg.Level = envOr("LOG_LEVEL", "info")
	if os.Getenv("ENV") == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)
	logger := logging.WithComponent("main")

	cfg := config.Load()

	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("transcription engine init failed")
	}
	defer engine.Close()
	logger.Info().Str("provider", engine.Name()).Msg("transcription engine ready")

	answers := answer.NewClient(cfg.Answer.BaseURL, cfg.Answer.Timeout)

	publisher := events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicFinal:  cfg.Kafka.TopicFinal,
		TopicAnswer: cfg.Kafka.TopicTurn,
		Principal:   cfg.Kafka.Principal,
	})
	defer publisher.Close()

	registry := session.NewRegistry(session.Options{
		Engine:    engine,
		Answers:   answers,
		Publisher: publisher,
		Turn: turn.Options{
			SegmentBytes:    cfg.Audio.SegmentBytes(),
			MaxConcurrent:   cfg.STT.MaxConcurrent,
			MinPartialWords: cfg.Turn.MinPartialWords,
			MinFinalWords:   cfg.Turn.MinFinalWords,
		},
	})

	obs := observability.NewServer(":" + cfg.Service.ObsPort)
	obs.Start()

	srv := server.New(":"+cfg.Service.HTTPPort, registry)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("session server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("session server shutdown failed")
	}
	registry.Close()
	if err := obs.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("observability server shutdown failed")
	}
}

func buildEngine(cfg *config.Configuration) (stt.Engine, error) {
	switch cfg.STT.Provider {
	case "mock":
		return mock.New(), nil
	case "google":
		return google.New(context.Background(), cfg.STT.LanguageCode, cfg.Audio.SampleRateHz)
	case "http":
		return httpstt.New(httpstt.Config{
			Endpoint:     cfg.STT.HTTPEndpoint,
			APIKey:       os.Getenv("STT_HTTP_API_KEY"),
			SampleRateHz: cfg.Audio.SampleRateHz,
		})
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
