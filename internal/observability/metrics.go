package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ingestion pipeline counters. A nil *Metrics is valid
// and counts nothing, so tests and one-shot CLI runs can skip the
// registry.
type Metrics struct {
	StatementsIngested    prometheus.Counter
	StatementsInvalidated prometheus.Counter
	StatementsSkipped     prometheus.Counter
	Anomalies             *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatementsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "composer",
			Name:      "statements_ingested_total",
			Help:      "Statements created or updated by ingestion.",
		}),
		StatementsInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "composer",
			Name:      "statements_invalidated_total",
			Help:      "Statements transitioned to the invalid state.",
		}),
		StatementsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "composer",
			Name:      "statements_skipped_total",
			Help:      "Statements rejected by the overwrite policy or filter.",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "composer",
			Name:      "anomalies_total",
			Help:      "Anomaly log entries by severity.",
		}, []string{"severity"}),
	}
	if reg != nil {
		reg.MustRegister(m.StatementsIngested, m.StatementsInvalidated, m.StatementsSkipped, m.Anomalies)
	}
	return m
}

func (m *Metrics) IncIngested() {
	if m != nil {
		m.StatementsIngested.Inc()
	}
}

func (m *Metrics) IncInvalidated() {
	if m != nil {
		m.StatementsInvalidated.Inc()
	}
}

func (m *Metrics) IncSkipped() {
	if m != nil {
		m.StatementsSkipped.Inc()
	}
}

func (m *Metrics) IncAnomaly(severity string) {
	if m != nil {
		m.Anomalies.WithLabelValues(severity).Inc()
	}
}
