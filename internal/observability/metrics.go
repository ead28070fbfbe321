package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	CompletionAttempts *prometheus.CounterVec
	PipelineResults    *prometheus.CounterVec
	TriageResults      *prometheus.CounterVec
	SymptomRecords     *prometheus.CounterVec
	ContextFallbacks   *prometheus.CounterVec
}

// NewMetrics registers the instruments on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CompletionAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_attempts_total",
			Help:      "Completion provider calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		PipelineResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_results_total",
			Help:      "Structured-response pipeline results by stage or failure kind.",
		}, []string{"result"}),
		TriageResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_results_total",
			Help:      "Triage classifications by risk.",
		}, []string{"risk"}),
		SymptomRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symptom_records_total",
			Help:      "Symptom intensity records by source and outcome.",
		}, []string{"source", "outcome"}),
		ContextFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_fallbacks_total",
			Help:      "Context assembly degradations by assembler and reason.",
		}, []string{"assembler", "reason"}),
	}
}

func (m *Metrics) CompletionAttempt(purpose, outcome string) {
	if m == nil {
		return
	}
	m.CompletionAttempts.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) PipelineResult(result string) {
	if m == nil {
		return
	}
	m.PipelineResults.WithLabelValues(result).Inc()
}

func (m *Metrics) TriageResult(risk string) {
	if m == nil {
		return
	}
	m.TriageResults.WithLabelValues(risk).Inc()
}

func (m *Metrics) SymptomRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.SymptomRecords.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ContextFallback(assembler, reason string) {
	if m == nil {
		return
	}
	m.ContextFallbacks.WithLabelValues(assembler, reason).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
