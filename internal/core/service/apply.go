package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/google/uuid"
)

var eventTargets = map[domain.EventType]domain.PaymentStatus{
	domain.EventPaymentSucceeded: domain.StatusSuccess,
	domain.EventPaymentFailed:    domain.StatusFailed,
	domain.EventPaymentCancelled: domain.StatusCancelled,
}

// ApplyGatewayEvent applies a verified gateway notification to a payment and
// marks the notification processed in the same transaction. Events that would
// break the state machine are logged and ignored.
func (l *Lifecycle) ApplyGatewayEvent(ctx context.Context, paymentID uuid.UUID, evt *domain.GatewayEvent, record *domain.WebhookEvent) (domain.WebhookOutcome, error) {
	logger := logging.FromContextOr(ctx, l.logger).With(
		"payment_id", paymentID,
		"provider", evt.Provider,
		"event_id", evt.EventID,
		"event_type", evt.Type,
	)

	var (
		outcome domain.WebhookOutcome
		tr      transitions
	)
	err := l.withLock(ctx, paymentID, func() error {
		tr = transitions{}
		return l.store.WithTx(ctx, func(tx ports.Store) error {
			p, err := tx.LoadPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}

			if mismatch := eventMismatch(p, evt); mismatch != "" {
				logger.Warn("ignoring gateway event that does not match the payment", "mismatch", mismatch)
				outcome = domain.WebhookIgnored
			} else if target, ok := eventTargets[evt.Type]; ok {
				outcome, err = l.applyPaymentEvent(ctx, tx, p, target, evt, &tr, logger)
			} else {
				switch evt.Type {
				case domain.EventRefundCompleted:
					outcome, err = l.applyRefundCompleted(ctx, tx, p, evt, &tr, logger)
				case domain.EventRefundFailed:
					outcome, err = l.applyRefundFailed(ctx, tx, p, evt, &tr, logger)
				default:
					logger.Info("ignoring unsupported gateway event", "raw_type", evt.RawType)
					outcome = domain.WebhookIgnored
				}
			}
			if err != nil {
				return err
			}

			record.Processed = true
			record.PaymentID = &p.ID
			return tx.RecordWebhookEvent(ctx, record)
		})
	})
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeDuplicateEvent) {
			logger.Info("webhook already processed")
			return domain.WebhookDuplicate, nil
		}
		return "", fmt.Errorf("failed to apply gateway event: %w", err)
	}

	l.commit(ctx, tr)
	return outcome, nil
}

// eventMismatch names the first detail of evt that contradicts the stored
// payment, or returns "" when the event may be applied to it.
func eventMismatch(p *domain.Payment, evt *domain.GatewayEvent) string {
	if evt.Provider != p.Gateway {
		return fmt.Sprintf("provider %q, payment gateway %q", evt.Provider, p.Gateway)
	}
	if evt.ExternalID != "" && p.GatewayPaymentID != nil && evt.ExternalID != *p.GatewayPaymentID {
		return fmt.Sprintf("charge %q, payment charge %q", evt.ExternalID, *p.GatewayPaymentID)
	}
	if evt.Currency != "" && evt.Currency != p.Currency {
		return fmt.Sprintf("currency %s, payment currency %s", evt.Currency, p.Currency)
	}
	// Refund events carry the refund's amount, which is checked against the balance.
	if _, ok := eventTargets[evt.Type]; ok && evt.Amount != nil && !evt.Amount.Equal(p.Amount) {
		return fmt.Sprintf("amount %s, payment amount %s", evt.Amount.String(), p.Amount.String())
	}
	return ""
}

func (l *Lifecycle) applyPaymentEvent(ctx context.Context, tx ports.Store, p *domain.Payment, target domain.PaymentStatus, evt *domain.GatewayEvent, tr *transitions, logger *slog.Logger) (domain.WebhookOutcome, error) {
	if p.Status == target {
		return domain.WebhookIgnored, nil
	}
	if err := p.CanTransitionTo(target); err != nil {
		logger.Warn("ignoring gateway event that conflicts with payment state", "status", p.Status, "target", target)
		return domain.WebhookIgnored, nil
	}

	now := l.now()
	update := domain.PaymentUpdate{
		ExpectedVersion:          p.Version,
		Status:                   &target,
		ClearProcessingStartedAt: true,
	}
	if evt.ExternalID != "" && p.GatewayPaymentID == nil {
		update.GatewayPaymentID = ptr(evt.ExternalID)
	}

	var eventType domain.LifecycleEventType
	switch target {
	case domain.StatusSuccess:
		update.ProcessedAt = &now
		eventType = domain.LifecyclePaymentSucceeded
	case domain.StatusFailed:
		reason := evt.Reason
		if reason == "" {
			reason = "declined by gateway"
		}
		update.ErrorReason = &reason
		eventType = domain.LifecyclePaymentFailed
	case domain.StatusCancelled:
		eventType = domain.LifecyclePaymentCancelled
	}

	updated, err := tx.UpdatePayment(ctx, p.ID, update)
	if err != nil {
		return "", err
	}
	tr.move(p.Status, target)
	tr.events = append(tr.events, domain.NewPaymentEvent(eventType, updated, now))
	logger.Info("payment updated from gateway event", "from", p.Status, "to", target)
	return domain.WebhookApplied, nil
}

// findEventRefund matches a refund notification to a stored refund: by the
// gateway refund id, or else by a pending refund of the same amount that the
// gateway has not identified yet.
func findEventRefund(ctx context.Context, tx ports.Store, p *domain.Payment, evt *domain.GatewayEvent) (*domain.Refund, error) {
	if evt.RefundExternalID != "" {
		r, err := tx.FindRefundByGatewayRef(ctx, evt.RefundExternalID)
		if err != nil || r != nil {
			return r, err
		}
	}
	refunds, err := tx.ListRefunds(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range refunds {
		if r.Status != domain.RefundPending || r.GatewayRefundID != nil {
			continue
		}
		if evt.Amount == nil || r.Amount.Equal(*evt.Amount) {
			return r, nil
		}
	}
	return nil, nil
}

func (l *Lifecycle) applyRefundCompleted(ctx context.Context, tx ports.Store, p *domain.Payment, evt *domain.GatewayEvent, tr *transitions, logger *slog.Logger) (domain.WebhookOutcome, error) {
	r, err := findEventRefund(ctx, tx, p, evt)
	if err != nil {
		return "", err
	}

	if r != nil {
		if r.Status != domain.RefundPending {
			if r.Status == domain.RefundFailed {
				logger.Warn("ignoring completion of a failed refund", "refund_id", r.ID)
			}
			return domain.WebhookIgnored, nil
		}
		if _, err := l.completeRefundTx(ctx, tx, p, r, evt.RefundExternalID, tr); err != nil {
			return "", err
		}
		return domain.WebhookApplied, nil
	}

	// A refund issued from the provider's dashboard.
	if p.Status != domain.StatusSuccess {
		logger.Warn("ignoring refund for payment that cannot be refunded", "status", p.Status)
		return domain.WebhookIgnored, nil
	}
	refunds, err := tx.ListRefunds(ctx, p.ID)
	if err != nil {
		return "", err
	}
	balance := p.RefundableBalance(domain.PendingTotal(refunds))
	amount := balance
	if evt.Amount != nil {
		amount = *evt.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(balance) {
		logger.Warn("ignoring refund that exceeds the refundable balance",
			"amount", amount.String(),
			"balance", balance.String(),
		)
		return domain.WebhookIgnored, nil
	}

	now := l.now()
	r = &domain.Refund{
		ID:             uuid.New(),
		PaymentID:      p.ID,
		Amount:         amount,
		Status:         domain.RefundPending,
		IdempotencyKey: "webhook-" + evt.Provider + "-" + evt.RefundExternalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.SaveRefund(ctx, r); err != nil {
		return "", err
	}
	if _, err := l.completeRefundTx(ctx, tx, p, r, evt.RefundExternalID, tr); err != nil {
		return "", err
	}
	logger.Info("recorded refund initiated at the gateway", "refund_id", r.ID)
	return domain.WebhookApplied, nil
}

func (l *Lifecycle) applyRefundFailed(ctx context.Context, tx ports.Store, p *domain.Payment, evt *domain.GatewayEvent, tr *transitions, logger *slog.Logger) (domain.WebhookOutcome, error) {
	r, err := findEventRefund(ctx, tx, p, evt)
	if err != nil {
		return "", err
	}
	if r == nil || r.Status != domain.RefundPending {
		logger.Info("ignoring failure of unknown or settled refund")
		return domain.WebhookIgnored, nil
	}
	reason := evt.Reason
	if reason == "" {
		reason = "refund declined by gateway"
	}
	if err := l.failRefundTx(ctx, tx, p, r, reason, tr); err != nil {
		return "", err
	}
	return domain.WebhookApplied, nil
}
