package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatewayRequests    *prometheus.CounterVec
	gatewayLatency     *prometheus.HistogramVec
	transitions        *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	refunds            *prometheus.CounterVec
	reconcilerRuns     prometheus.Counter
	reconciledPayments *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Outbound gateway calls by provider, operation and outcome",
			},
			[]string{"provider", "operation", "outcome"},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Outbound gateway call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transitions_total",
				Help: "Payment status transitions",
			},
			[]string{"from", "to"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Webhook notifications by provider and result",
			},
			[]string{"provider", "result"},
		),
		refunds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refunds_total",
				Help: "Refund outcomes",
			},
			[]string{"status"},
		),
		reconcilerRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciler_runs_total",
				Help: "Background reconciliation cycles",
			},
		),
		reconciledPayments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_items_total",
				Help: "Items handled by the background reconciler",
			},
			[]string{"kind", "result"},
		),
	}

	reg.MustRegister(
		m.gatewayRequests,
		m.gatewayLatency,
		m.transitions,
		m.webhookEvents,
		m.refunds,
		m.reconcilerRuns,
		m.reconciledPayments,
	)
	return m
}

func (m *Metrics) ObserveGatewayCall(provider, operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(provider, operation, outcome).Inc()
	m.gatewayLatency.WithLabelValues(provider, operation).Observe(took.Seconds())
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Webhook(provider, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Refund(status string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(status).Inc()
}

func (m *Metrics) ReconcilerRun() {
	if m == nil {
		return
	}
	m.reconcilerRuns.Inc()
}

func (m *Metrics) Reconciled(kind, result string) {
	if m == nil {
		return
	}
	m.reconciledPayments.WithLabelValues(kind, result).Inc()
}
