package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"github.com/google/uuid"
)

// WebhookReconciler verifies inbound gateway notifications and applies them
// through the lifecycle. Each provider event is applied at most once.
type WebhookReconciler struct {
	store     ports.Store
	gateways  ports.GatewayRegistry
	lifecycle *Lifecycle
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewWebhookReconciler(
	store ports.Store,
	gateways ports.GatewayRegistry,
	lifecycle *Lifecycle,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *WebhookReconciler {
	return &WebhookReconciler{
		store:     store,
		gateways:  gateways,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle processes one notification. A replayed event returns WebhookDuplicate
// and changes nothing.
func (w *WebhookReconciler) Handle(ctx context.Context, env domain.WebhookEnvelope) (domain.WebhookOutcome, error) {
	outcome, err := w.handle(ctx, env)
	result := string(outcome)
	if err != nil {
		result = "error"
		if domain.IsErrorCode(err, domain.ErrCodeUnauthenticated) {
			result = "unauthenticated"
		}
	}
	w.metrics.Webhook(env.Provider, result)
	return outcome, err
}

func (w *WebhookReconciler) handle(ctx context.Context, env domain.WebhookEnvelope) (domain.WebhookOutcome, error) {
	logger := logging.FromContextOr(ctx, w.logger).With("provider", env.Provider)

	parser, err := w.gateways.WebhookParser(env.Provider)
	if err != nil {
		return "", err
	}
	if err := parser.Verify(env.Payload, env.Signature); err != nil {
		logger.Warn("rejected webhook with invalid signature", "error", err)
		return "", domain.NewUnauthenticatedError(env.Provider, err)
	}

	evt, err := parser.Parse(env.Payload)
	if err != nil {
		return "", err
	}
	logger = logger.With("event_id", evt.EventID, "event_type", evt.Type)

	processed, err := w.store.IsWebhookProcessed(ctx, evt.Provider, evt.EventID)
	if err != nil {
		return "", err
	}
	if processed {
		logger.Info("webhook already processed")
		return domain.WebhookDuplicate, nil
	}

	record := &domain.WebhookEvent{
		ID:              uuid.New(),
		Provider:        evt.Provider,
		ProviderEventID: evt.EventID,
		EventType:       evt.RawType,
		Payload:         json.RawMessage(env.Payload),
		CreatedAt:       time.Now().UTC(),
	}

	payment, err := w.resolvePayment(ctx, evt)
	if err != nil {
		if !domain.IsErrorCode(err, domain.ErrCodeNotFound) {
			return "", err
		}
		if evt.Type == domain.EventUnknown {
			record.Processed = true
			if recErr := w.store.RecordWebhookEvent(ctx, record); recErr != nil && !domain.IsErrorCode(recErr, domain.ErrCodeDuplicateEvent) {
				return "", recErr
			}
			return domain.WebhookIgnored, nil
		}
		// Kept unprocessed so a redelivery after the payment appears is still applied.
		if recErr := w.store.RecordWebhookEvent(ctx, record); recErr != nil && !domain.IsErrorCode(recErr, domain.ErrCodeDuplicateEvent) {
			logger.Error("failed to record webhook", "error", recErr)
		}
		logger.Warn("webhook for unknown payment", "external_id", evt.ExternalID)
		return "", err
	}

	outcome, err := w.lifecycle.ApplyGatewayEvent(ctx, payment.ID, evt, record)
	if err != nil {
		logger.Error("failed to apply webhook", "payment_id", payment.ID, "error", err)
		return "", err
	}
	logger.Info("webhook handled", "payment_id", payment.ID, "outcome", outcome)
	return outcome, nil
}

func (w *WebhookReconciler) resolvePayment(ctx context.Context, evt *domain.GatewayEvent) (*domain.Payment, error) {
	if evt.PaymentID != nil {
		return w.store.LoadPayment(ctx, *evt.PaymentID)
	}
	if evt.ExternalID != "" {
		return w.store.FindByGatewayRef(ctx, evt.Provider, evt.ExternalID)
	}
	return nil, domain.NewNotFoundError("payment for event", evt.EventID)
}
