package psys

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus-compatible instrumentation for a Recorder
// run, namespaced "psystem_":
//
//  1. live_membranes (gauge): membrane count after the most recent step.
//     Labels: run_id.
//  2. step_latency_ms (histogram): wall-clock duration of one Step call.
//     Labels: run_id, status (ok/error).
//  3. applications_total (counter): selected rule applications, summed
//     across all membranes in a step. Labels: run_id, kind (rewrite,
//     creator, dissolver, divider).
//  4. created_total / dissolved_total (counters): structural mutations
//     committed per step. Labels: run_id.
//  5. step_errors_total (counter): fatal step failures by error kind.
//     Labels: run_id, kind.
//
// Thread-safe: all methods use atomic Prometheus operations or mutex
// protection around the enabled flag.
type Metrics struct {
	liveMembranes *prometheus.GaugeVec
	stepLatency   *prometheus.HistogramVec
	applications  *prometheus.CounterVec
	created       *prometheus.CounterVec
	dissolved     *prometheus.CounterVec
	stepErrors    *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers all recorder metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{registry: registry, enabled: true}

	m.liveMembranes = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "psystem",
		Name:      "live_membranes",
		Help:      "Number of live membranes after the most recent committed step",
	}, []string{"run_id"})

	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "psystem",
		Name:      "step_latency_ms",
		Help:      "Step execution duration in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"run_id", "status"})

	m.applications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psystem",
		Name:      "applications_total",
		Help:      "Cumulative count of selected rule applications, by rule kind",
	}, []string{"run_id", "kind"})

	m.created = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psystem",
		Name:      "created_total",
		Help:      "Cumulative count of membranes created (prototype instantiation or division)",
	}, []string{"run_id"})

	m.dissolved = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psystem",
		Name:      "dissolved_total",
		Help:      "Cumulative count of membranes dissolved",
	}, []string{"run_id"})

	m.stepErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psystem",
		Name:      "step_errors_total",
		Help:      "Fatal step failures by error kind",
	}, []string{"run_id", "kind"})

	return m
}

// RecordStep updates step_latency_ms, live_membranes, applications_total,
// created_total and dissolved_total from one completed Step call. status
// is "ok" or "error"; result is ignored for error steps.
func (m *Metrics) RecordStep(runID string, latency time.Duration, status string, result StepResult, liveAfter int) {
	if !m.isEnabled() {
		return
	}
	m.stepLatency.WithLabelValues(runID, status).Observe(float64(latency.Microseconds()) / 1000)
	if status != "ok" {
		return
	}
	m.liveMembranes.WithLabelValues(runID).Set(float64(liveAfter))
	for _, vec := range result.Selection {
		for _, app := range vec {
			m.applications.WithLabelValues(runID, kindLabel(app.Rule.Kind())).Add(float64(app.Count))
		}
	}
	if n := len(result.Created); n > 0 {
		m.created.WithLabelValues(runID).Add(float64(n))
	}
	if n := len(result.Dissolved); n > 0 {
		m.dissolved.WithLabelValues(runID).Add(float64(n))
	}
}

// RecordStepError increments step_errors_total for a fatal step failure
// classified as kind (e.g. "prototype_missing", "malformed_routing_key",
// "invariant_violation").
func (m *Metrics) RecordStepError(runID, kind string) {
	if !m.isEnabled() {
		return
	}
	m.stepErrors.WithLabelValues(runID, kind).Inc()
}

func kindLabel(k RuleKind) string {
	switch k {
	case KindCreator:
		return "creator"
	case KindDissolver:
		return "dissolver"
	case KindDivider:
		return "divider"
	default:
		return "rewrite"
	}
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable temporarily stops metric recording (useful for testing).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
