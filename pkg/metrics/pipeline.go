package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Asset outcomes recorded by PipelineMetrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
)

// PipelineMetrics tracks asset generation and workflow runs.
type PipelineMetrics struct {
	assets       *prometheus.CounterVec
	assetLatency *prometheus.HistogramVec
	credits      *prometheus.CounterVec
	runs         *prometheus.CounterVec
	waveLatency  *prometheus.HistogramVec
}

// NewPipelineMetrics registers the pipeline metrics. A nil registerer yields a no-op recorder.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "assets_total",
			Help:      "Asset generation attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		assetLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "asset_duration_seconds",
			Help:      "Provider round trip plus storage time per asset.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "credits_debited_total",
			Help:      "Credits debited by asset kind.",
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Workflow runs by terminal status.",
		}, []string{"status"}),
		waveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "wave_duration_seconds",
			Help:      "Duration of each orchestrator wave.",
			Buckets:   []float64{5, 30, 60, 120, 300, 600, 1200},
		}, []string{"wave"}),
	}
	reg.MustRegister(m.assets, m.assetLatency, m.credits, m.runs, m.waveLatency)
	return m
}

func (m *PipelineMetrics) ObserveAsset(kind, outcome string, duration time.Duration) {
	if m == nil || m.assets == nil {
		return
	}
	m.assets.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
	if outcome == OutcomeSucceeded {
		m.assetLatency.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
	}
}

func (m *PipelineMetrics) AddCredits(kind string, amount int) {
	if m == nil || m.credits == nil || amount <= 0 {
		return
	}
	m.credits.WithLabelValues(normalizeLabel(kind)).Add(float64(amount))
}

func (m *PipelineMetrics) IncRun(status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *PipelineMetrics) ObserveWave(wave string, duration time.Duration) {
	if m == nil || m.waveLatency == nil {
		return
	}
	m.waveLatency.WithLabelValues(normalizeLabel(wave)).Observe(duration.Seconds())
}
