// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clippy"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	FramesCaptured    prometheus.Counter
	FramesSkipped     prometheus.Counter
	BatchesDispatched prometheus.Counter
	BatchesDropped    prometheus.Counter
	Classifications   *prometheus.CounterVec
	GateDecisions     *prometheus.CounterVec
	NoAssists         *prometheus.CounterVec
	CycleSeconds      prometheus.Histogram
	InFlight          prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWith(reg, reg)
}

func newWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames captured and pushed to the batcher.",
		}),
		FramesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks where capture failed or returned no frame.",
		}),
		BatchesDispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dispatched_total",
			Help:      "Full batches handed to the cycle worker.",
		}),
		BatchesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dropped_total",
			Help:      "Full batches dropped because a cycle was in flight.",
		}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Batch classifications by label.",
		}, []string{"label"}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Suggestion gate decisions.",
		}, []string{"decision"}),
		NoAssists: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_no_assist_total",
			Help:      "Routed batches that produced no suggestion, by agent.",
		}, []string{"agent"}),
		CycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time from batch dispatch to gate decision.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_in_flight",
			Help:      "1 while a classification cycle is running.",
		}),
		gatherer: g,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) FrameSkipped() {
	if m != nil {
		m.FramesSkipped.Inc()
	}
}

func (m *Metrics) BatchDispatched() {
	if m != nil {
		m.BatchesDispatched.Inc()
	}
}

func (m *Metrics) BatchDropped() {
	if m != nil {
		m.BatchesDropped.Inc()
	}
}

func (m *Metrics) Classified(label string) {
	if m != nil {
		m.Classifications.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) Gated(decision string) {
	if m != nil {
		m.GateDecisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) NoAssist(agent string) {
	if m != nil {
		m.NoAssists.WithLabelValues(agent).Inc()
	}
}

// CycleStarted marks a cycle in flight and returns a func recording its
// duration.
func (m *Metrics) CycleStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.InFlight.Set(1)
	return func() {
		m.InFlight.Set(0)
		m.CycleSeconds.Observe(time.Since(start).Seconds())
	}
}
