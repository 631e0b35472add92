package ports

import (
	"context"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
)

// PaymentRepository persists payments. UpdatePayment applies only the set fields of the update
// and fails with CONCURRENT_MODIFICATION when the stored version differs from ExpectedVersion.
type PaymentRepository interface {
	SavePayment(ctx context.Context, payment *domain.Payment) error
	LoadPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	LoadPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, update domain.PaymentUpdate) (*domain.Payment, error)
	FindByGatewayRef(ctx context.Context, gateway, externalID string) (*domain.Payment, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error)
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error)
}

// RefundRepository persists refunds. The Find lookups return nil, nil when nothing matches.
type RefundRepository interface {
	SaveRefund(ctx context.Context, refund *domain.Refund) error
	UpdateRefund(ctx context.Context, refund *domain.Refund) error
	FindRefundByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error)
	FindRefundByGatewayRef(ctx context.Context, gatewayRefundID string) (*domain.Refund, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error)
	FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error)
}

// WebhookRepository records received notifications for replay safety.
type WebhookRepository interface {
	// RecordWebhookEvent stores the event, or updates an earlier unprocessed record of it.
	// It fails with DUPLICATE_EVENT when the provider event id was already processed.
	RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
	IsWebhookProcessed(ctx context.Context, provider, providerEventID string) (bool, error)
}

type CustomerRepository interface {
	SaveCustomer(ctx context.Context, customer *domain.Customer) error
	LoadCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// Store is the system of record for the orchestrator.
type Store interface {
	PaymentRepository
	RefundRepository
	WebhookRepository
	CustomerRepository

	// WithTx executes a function within a transaction. Writes made through the
	// Store passed to fn are committed together or not at all.
	WithTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
