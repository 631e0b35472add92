// Package service implements the payment lifecycle: creation, processing,
// cancellation, refunds and the application of gateway notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Options tunes the lifecycle. Zero values fall back to defaults.
type Options struct {
	// GatewayTimeout bounds every gateway call and is how long an in-flight marker is honoured.
	GatewayTimeout  time.Duration
	PollInterval    time.Duration
	LockTimeout     time.Duration
	DefaultCurrency string
	PaymentURLBase  string
}

func (o Options) withDefaults() Options {
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 10 * time.Second
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "RUB"
	}
	if o.PaymentURLBase == "" {
		o.PaymentURLBase = "https://pay.example.com"
	}
	return o
}

// Lifecycle owns payment state transitions. Work on one payment is serialized
// through the locker; the lock is never held across a gateway call.
type Lifecycle struct {
	store     ports.Store
	gateways  ports.GatewayRegistry
	locker    ports.Locker
	publisher ports.EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	validate  *validator.Validate
	flight    singleflight.Group
	opts      Options
	now       func() time.Time
}

func NewLifecycle(
	store ports.Store,
	gateways ports.GatewayRegistry,
	locker ports.Locker,
	publisher ports.EventPublisher,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
	opts Options,
) *Lifecycle {
	return &Lifecycle{
		store:     store,
		gateways:  gateways,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentCommand holds the caller's input for a new payment.
type CreatePaymentCommand struct {
	Amount      decimal.Decimal
	Currency    string
	Method      domain.PaymentMethod
	CustomerID  *string
	Description string
	ReturnURL   string
	Metadata    map[string]string
}

// CreatePayment validates the command, assigns a gateway and stores a PENDING payment.
func (l *Lifecycle) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (*domain.Payment, error) {
	currency := domain.NormalizeCurrency(cmd.Currency)
	if currency == "" {
		currency = l.opts.DefaultCurrency
	}
	if !domain.IsSupportedCurrency(currency) {
		return nil, domain.NewValidationError(fmt.Sprintf("unsupported currency %q", cmd.Currency))
	}
	if err := domain.ValidateAmount(cmd.Amount, currency); err != nil {
		return nil, err
	}
	if !cmd.Method.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown payment method %q", cmd.Method))
	}

	adapter, err := l.gateways.ForMethod(cmd.Method)
	if err != nil {
		return nil, err
	}

	now := l.now()
	id := uuid.New()
	payment := &domain.Payment{
		ID:             id,
		Amount:         cmd.Amount,
		Currency:       currency,
		Method:         cmd.Method,
		Status:         domain.StatusPending,
		CustomerID:     cmd.CustomerID,
		Metadata:       cmd.Metadata,
		Description:    cmd.Description,
		ReturnURL:      cmd.ReturnURL,
		PaymentURL:     strings.TrimRight(l.opts.PaymentURLBase, "/") + "/" + id.String(),
		Gateway:        adapter.Name(),
		RefundedAmount: decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.store.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	logging.FromContextOr(ctx, l.logger).Info("payment created",
		"payment_id", payment.ID,
		"amount", domain.FormatAmount(payment.Amount, currency),
		"currency", currency,
		"gateway", payment.Gateway,
	)
	l.publish(ctx, domain.NewPaymentEvent(domain.LifecyclePaymentCreated, payment, now))
	return payment, nil
}

// GetPayment returns the stored payment.
func (l *Lifecycle) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return l.store.LoadPayment(ctx, id)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListByCustomer returns a customer's payments, newest first.
func (l *Lifecycle) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error) {
	if customerID == "" {
		return nil, domain.NewValidationError("customer id is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.ListByCustomer(ctx, customerID, limit, offset)
}

// ListRefunds returns the refunds of a payment, oldest first.
func (l *Lifecycle) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error) {
	if _, err := l.store.LoadPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return l.store.ListRefunds(ctx, paymentID)
}

func lockKey(id uuid.UUID) string {
	return "payment:" + id.String()
}

// withLock runs fn while holding the payment's lock.
func (l *Lifecycle) withLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.opts.LockTimeout)
	defer cancel()

	unlock, err := l.locker.Lock(lockCtx, lockKey(id))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.DomainError{
				Code:    domain.ErrCodeProcessingInFlight,
				Message: fmt.Sprintf("payment %s is locked by another operation", id),
				Err:     err,
			}
		}
		return fmt.Errorf("failed to lock payment %s: %w", id, err)
	}
	defer unlock()

	return fn()
}

// gatewayContext detaches a gateway call from the caller so a disconnect never
// abandons settlement, and bounds it with the gateway timeout.
func (l *Lifecycle) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.opts.GatewayTimeout)
}

func (l *Lifecycle) publish(ctx context.Context, events ...domain.LifecycleEvent) {
	if l.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := l.publisher.Publish(ctx, ev); err != nil {
			logging.FromContextOr(ctx, l.logger).Warn("failed to publish lifecycle event",
				"event_type", ev.Type,
				"payment_id", ev.PaymentID,
				"error", err,
			)
		}
	}
}

func (l *Lifecycle) recordTransition(from, to domain.PaymentStatus) {
	if from != to {
		l.metrics.Transition(string(from), string(to))
	}
}

// gatewayReason extracts the provider's decline text from err.
func gatewayReason(err error) string {
	var withReason interface{ Reason() string }
	if errors.As(err, &withReason) {
		if r := withReason.Reason(); r != "" {
			return r
		}
	}
	return err.Error()
}

func ptr[T any](v T) *T {
	return &v
}
