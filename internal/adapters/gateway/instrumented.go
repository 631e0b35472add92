package gateway

import (
	"context"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented records a span and latency metrics around every adapter call.
type Instrumented struct {
	inner   ports.GatewayAdapter
	metrics *telemetry.Metrics
}

func NewInstrumented(inner ports.GatewayAdapter, metrics *telemetry.Metrics) *Instrumented {
	return &Instrumented{inner: inner, metrics: metrics}
}

func (g *Instrumented) Name() string {
	return g.inner.Name()
}

func (g *Instrumented) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	return observe(ctx, g, "create_charge", func(ctx context.Context) (*domain.ChargeResult, error) {
		return g.inner.CreateCharge(ctx, req)
	}, attribute.String("payment.id", req.PaymentID.String()))
}

func (g *Instrumented) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	return observe(ctx, g, "capture_charge", func(ctx context.Context) (*domain.ChargeResult, error) {
		return g.inner.CaptureCharge(ctx, externalID, idempotencyKey)
	}, attribute.String("gateway.external_id", externalID))
}

func (g *Instrumented) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	return observe(ctx, g, "get_charge", func(ctx context.Context) (*domain.ChargeResult, error) {
		return g.inner.GetCharge(ctx, externalID)
	}, attribute.String("gateway.external_id", externalID))
}

func (g *Instrumented) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	return observe(ctx, g, "cancel_charge", func(ctx context.Context) (*domain.ChargeResult, error) {
		return g.inner.CancelCharge(ctx, externalID, idempotencyKey)
	}, attribute.String("gateway.external_id", externalID))
}

func (g *Instrumented) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	return observe(ctx, g, "refund_charge", func(ctx context.Context) (*domain.RefundResult, error) {
		return g.inner.RefundCharge(ctx, req)
	}, attribute.String("gateway.external_id", req.ExternalID))
}

func observe[T any](ctx context.Context, g *Instrumented, operation string, call func(context.Context) (*T, error), attrs ...attribute.KeyValue) (*T, error) {
	provider := g.inner.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "gateway."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("gateway.provider", provider))...),
	)
	defer span.End()

	start := time.Now()
	res, err := call(ctx)
	took := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "rejected"
		if domain.IsRetryableError(err) {
			outcome = "unavailable"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	g.metrics.ObserveGatewayCall(provider, operation, outcome, took)
	return res, err
}
