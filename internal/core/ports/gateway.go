package ports

import (
	"context"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
)

// GatewayAdapter defines the behavior of an external settlement provider.
// Implementations hold no payment state between calls.
type GatewayAdapter interface {
	Name() string
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error)
	CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error)
	GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error)
	CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error)
	RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error)
}

// WebhookParser verifies and normalizes one provider's notifications.
type WebhookParser interface {
	Provider() string
	SignatureHeader() string
	Verify(payload []byte, signature string) error
	Parse(payload []byte) (*domain.GatewayEvent, error)
}

// GatewayRegistry resolves adapters by name or payment method, and webhook parsers by provider.
type GatewayRegistry interface {
	Adapter(name string) (GatewayAdapter, error)
	ForMethod(method domain.PaymentMethod) (GatewayAdapter, error)
	WebhookParser(provider string) (WebhookParser, error)
}
