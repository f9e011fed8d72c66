package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by OutboxMetrics.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batch   prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Pub/Sub publish round trip by topic.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_rows",
			Help:      "Rows fetched per non-empty publisher batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batch)
	return m
}

func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, duration time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(topic)).Observe(duration.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batch == nil || rows <= 0 {
		return
	}
	m.batch.Observe(float64(rows))
}
