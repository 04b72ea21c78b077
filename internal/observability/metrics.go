package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bot. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Events           *prometheus.CounterVec
	PipelineRuns     *prometheus.CounterVec
	VoiceReplacement *prometheus.CounterVec
	SynthesisSeconds prometheus.Histogram
	ActiveSessions   *prometheus.GaugeVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound chat events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Animation pipeline runs by outcome.",
		}, []string{"outcome"}),
		VoiceReplacement: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_replacement_total",
			Help:      "Voice replacement attempts by outcome.",
		}, []string{"outcome"}),
		SynthesisSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_seconds",
			Help:      "Wall time of image-to-video synthesis.",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
		}),
		ActiveSessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Users with a non-idle session, per track.",
		}, []string{"track"}),
	}
}

func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VoiceReplaced(outcome string) {
	if m == nil {
		return
	}
	m.VoiceReplacement.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSynthesis(d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisSeconds.Observe(d.Seconds())
}

func (m *Metrics) SetActiveSessions(track string, n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(track).Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
