package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveGatewayCall("stripe", "create_charge", "ok", 120*time.Millisecond)
	m.ObserveGatewayCall("stripe", "create_charge", "ok", 80*time.Millisecond)
	m.Transition("PENDING", "SUCCESS")
	m.Webhook("yookassa", "duplicate")
	m.Refund("completed")
	m.ReconcilerRun()
	m.Reconciled("payment", "resolved")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("stripe", "create_charge", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("PENDING", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("yookassa", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciledPayments.WithLabelValues("payment", "resolved")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.gatewayLatency))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGatewayCall("stripe", "create_charge", "ok", time.Second)
		m.Transition("PENDING", "FAILED")
		m.Webhook("stripe", "applied")
		m.Refund("failed")
		m.ReconcilerRun()
		m.Reconciled("refund", "error")
	})
}
