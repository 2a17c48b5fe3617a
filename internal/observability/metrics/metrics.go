// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicechat_orchestrator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	// Turn metrics
	TurnsStarted   prometheus.Counter
	TurnsFinalized *prometheus.CounterVec // outcome: answered, insufficient_words, error
	BarrierLatency prometheus.Histogram

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	SegmentsEmitted    prometheus.Counter
	TrailingFlushes    prometheus.Counter

	// Transcription job metrics
	JobsScheduled        prometheus.Counter
	JobsStale            prometheus.Counter
	TranscriptionErrors  prometheus.Counter
	TranscriptionLatency *prometheus.HistogramVec // provider

	// Relay metrics
	RelaysOpened     prometheus.Counter
	RelaysSuperseded prometheus.Counter
	RelayEvents      *prometheus.CounterVec // event name

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec // topic
	KafkaPublishErrors  *prometheus.CounterVec // topic
	KafkaPublishLatency *prometheus.HistogramVec

	// Protocol metrics
	ProtocolErrors prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions created.",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently attached voice sessions.",
		}),
		TurnsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_started_total",
			Help:      "Total number of turns started.",
		}),
		TurnsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_finalized_total",
			Help:      "Total number of turns finalized, by outcome.",
		}, []string{"outcome"}),
		BarrierLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_barrier_seconds",
			Help:      "Time spent waiting for outstanding transcription jobs at finalize.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total raw PCM bytes ingested.",
		}),
		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total full-size segments sliced from session buffers.",
		}),
		TrailingFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trailing_flushes_total",
			Help:      "Total short trailing segments flushed at finalize.",
		}),
		JobsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_jobs_scheduled_total",
			Help:      "Total transcription jobs dispatched.",
		}),
		JobsStale: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_jobs_stale_total",
			Help:      "Total completions discarded due to generation mismatch.",
		}),
		TranscriptionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total transcription engine failures (segment treated as empty).",
		}),
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Transcription engine call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
		RelaysOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_opened_total",
			Help:      "Total answer relays opened.",
		}),
		RelaysSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_superseded_total",
			Help:      "Total relays closed because a newer relay replaced them.",
		}),
		RelayEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Total answer stream events forwarded, by event name.",
		}, []string{"event"}),
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total events published to Kafka, by topic.",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total Kafka publish failures, by topic.",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total malformed control or audio frames ignored.",
		}),
	}
}

// RecordKafkaPublish records the outcome of one publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, seconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
}
