package events

import (
	"context"
	"testing"

	"voicechat-orchestrator/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
		{"nil config", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
			if p.writerAnswer != nil {
				t.Error("expected nil answer writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:     false,
		Brokers:     []string{"localhost:9092"},
		TopicFinal:  "test.turn.final",
		TopicAnswer: "test.turn.answer",
		Principal:   "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicFinal != "test.turn.final" {
		t.Errorf("expected topic final 'test.turn.final', got %s", p.topicFinal)
	}
	if p.topicAnswer != "test.turn.answer" {
		t.Errorf("expected topic answer 'test.turn.answer', got %s", p.topicAnswer)
	}
}

func TestPublisher_PublishTurnFinal_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicFinal: "voice.turn.final"})

	evt := models.TurnFinal{
		EventType:     models.EventTypeTurnFinal,
		CorrelationID: "corr-123",
		Generation:    3,
		Text:          "hello there how are you",
		WordCount:     5,
	}

	if err := p.PublishTurnFinal(context.Background(), evt); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurnAnswer_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicAnswer: "voice.turn.answer"})

	evt := models.TurnAnswer{
		EventType:       models.EventTypeTurnAnswer,
		CorrelationID:   "corr-123",
		AnswerSessionID: "sess_abc",
		Outcome:         "done",
	}

	if err := p.PublishTurnAnswer(context.Background(), evt); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{
		writerFinal:  nil,
		writerAnswer: nil,
	}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
