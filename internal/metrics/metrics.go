package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	intents        *prometheus.CounterVec
	proposals      *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	auditFailures  prometheus.Counter
	requestSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkpulse",
			Name:      "intents_total",
			Help:      "Classified user intents.",
		}, []string{"intent"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkpulse",
			Name:      "proposals_total",
			Help:      "Proposal submissions by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkpulse",
			Name:      "notifications_total",
			Help:      "Proposal notification emails by result.",
		}, []string{"result"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkpulse",
			Name:      "audit_failures_total",
			Help:      "Failed audit log operations.",
		}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parkpulse",
			Name:      "agent_request_seconds",
			Help:      "Agent request latency by resulting action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	reg.MustRegister(m.intents, m.proposals, m.notifications, m.auditFailures, m.requestSeconds)
	return m
}

func (m *Metrics) Intent(kind string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Proposal(outcome string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) ObserveRequest(action string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestSeconds.WithLabelValues(action).Observe(elapsed.Seconds())
}
