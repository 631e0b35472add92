package service

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundCommand requests a refund. A nil Amount refunds the remaining balance.
type RefundCommand struct {
	PaymentID      uuid.UUID
	Amount         *decimal.Decimal
	Reason         *string
	IdempotencyKey string
}

// RefundPayment refunds part or all of a SUCCESS payment.
//
// The amount is reserved against the refundable balance before the gateway is
// called, so concurrent refunds can never exceed the payment amount. A refund
// the gateway has not settled yet is returned in pending status.
func (l *Lifecycle) RefundPayment(ctx context.Context, cmd RefundCommand) (*domain.Refund, error) {
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = uuid.NewString()
	}

	existing, err := l.store.FindRefundByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check refund idempotency: %w", err)
	}
	if existing != nil {
		return l.replayRefund(ctx, cmd, existing)
	}

	var (
		refund  *domain.Refund
		payment *domain.Payment
	)
	err = l.withLock(ctx, cmd.PaymentID, func() error {
		return l.store.WithTx(ctx, func(tx ports.Store) error {
			p, err := tx.LoadPaymentForUpdate(ctx, cmd.PaymentID)
			if err != nil {
				return err
			}
			if p.Status != domain.StatusSuccess {
				return domain.NewInvalidTransitionError(p.Status, domain.StatusRefunded)
			}
			if p.GatewayPaymentID == nil {
				return domain.NewConflictError(fmt.Sprintf("payment %s has no gateway reference to refund", p.ID))
			}

			refunds, err := tx.ListRefunds(ctx, p.ID)
			if err != nil {
				return err
			}
			balance := p.RefundableBalance(domain.PendingTotal(refunds))

			amount := balance
			if cmd.Amount != nil {
				amount = *cmd.Amount
			}
			if err := domain.ValidateAmount(amount, p.Currency); err != nil {
				return err
			}
			if amount.GreaterThan(balance) {
				return domain.NewRefundExceedsBalanceError(amount, balance)
			}

			now := l.now()
			refund = &domain.Refund{
				ID:             uuid.New(),
				PaymentID:      p.ID,
				Amount:         amount,
				Reason:         cmd.Reason,
				Status:         domain.RefundPending,
				IdempotencyKey: cmd.IdempotencyKey,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			payment = p
			return tx.SaveRefund(ctx, refund)
		})
	})
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeConflict) {
			if raced, findErr := l.store.FindRefundByIdempotencyKey(ctx, cmd.IdempotencyKey); findErr == nil && raced != nil {
				return l.replayRefund(ctx, cmd, raced)
			}
		}
		return nil, err
	}

	logging.FromContextOr(ctx, l.logger).Info("refund reserved",
		"payment_id", payment.ID,
		"refund_id", refund.ID,
		"amount", domain.FormatAmount(refund.Amount, payment.Currency),
	)
	return l.driveRefund(ctx, payment, refund)
}

// replayRefund answers a repeated idempotency key with the refund it created.
func (l *Lifecycle) replayRefund(ctx context.Context, cmd RefundCommand, existing *domain.Refund) (*domain.Refund, error) {
	if existing.PaymentID != cmd.PaymentID {
		return nil, domain.NewConflictError("idempotency key " + cmd.IdempotencyKey + " was used for another payment")
	}
	switch existing.Status {
	case domain.RefundPending:
		return l.RetryRefund(ctx, existing)
	case domain.RefundFailed:
		reason := "refund declined by gateway"
		if existing.ErrorReason != nil {
			reason = *existing.ErrorReason
		}
		return existing, domain.NewGatewayRejectedError(reason, nil)
	}
	return existing, nil
}

// RetryRefund re-submits a pending refund with its original gateway idempotency key.
func (l *Lifecycle) RetryRefund(ctx context.Context, refund *domain.Refund) (*domain.Refund, error) {
	payment, err := l.store.LoadPayment(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	return l.driveRefund(ctx, payment, refund)
}

func (l *Lifecycle) driveRefund(ctx context.Context, payment *domain.Payment, refund *domain.Refund) (*domain.Refund, error) {
	adapter, err := l.gateways.Adapter(payment.Gateway)
	if err != nil {
		return refund, err
	}

	callCtx, cancel := l.gatewayContext(ctx)
	result, gwErr := adapter.RefundCharge(callCtx, domain.RefundRequest{
		ExternalID:     *payment.GatewayPaymentID,
		Amount:         refund.Amount,
		AmountMinor:    domain.ToMinorUnits(refund.Amount, payment.Currency),
		Currency:       payment.Currency,
		IdempotencyKey: "refund-" + refund.ID.String(),
	})
	cancel()

	return l.finalizeRefund(ctx, payment.ID, refund.IdempotencyKey, result, gwErr)
}

// finalizeRefund records the gateway outcome of a refund call.
func (l *Lifecycle) finalizeRefund(ctx context.Context, paymentID uuid.UUID, key string, result *domain.RefundResult, gwErr error) (*domain.Refund, error) {
	logger := logging.FromContextOr(ctx, l.logger).With("payment_id", paymentID)

	var (
		final   *domain.Refund
		outcome error
		tr      transitions
	)
	err := l.withLock(ctx, paymentID, func() error {
		tr = transitions{}
		return l.store.WithTx(ctx, func(tx ports.Store) error {
			r, err := tx.FindRefundByIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if r == nil {
				return domain.NewNotFoundError("refund", key)
			}
			final = r
			if r.Status != domain.RefundPending {
				return nil
			}

			p, err := tx.LoadPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			now := l.now()

			switch {
			case gwErr != nil && domain.IsRetryableError(gwErr):
				logger.Warn("gateway unavailable, refund left pending", "refund_id", r.ID, "error", gwErr)
				outcome = domain.NewGatewayUnavailableError(p.Gateway, gwErr)
				return nil

			case gwErr != nil:
				reason := gatewayReason(gwErr)
				outcome = domain.NewGatewayRejectedError(reason, gwErr)
				return l.failRefundTx(ctx, tx, p, r, reason, &tr)

			case result.Status == domain.ProviderSucceeded:
				_, err := l.completeRefundTx(ctx, tx, p, r, result.ExternalID, &tr)
				return err

			case result.Status == domain.ProviderFailed, result.Status == domain.ProviderCanceled:
				reason := result.FailureReason
				if reason == "" {
					reason = "refund declined by gateway"
				}
				outcome = domain.NewGatewayRejectedError(reason, nil)
				return l.failRefundTx(ctx, tx, p, r, reason, &tr)

			default:
				if result.ExternalID != "" {
					r.GatewayRefundID = ptr(result.ExternalID)
				}
				r.UpdatedAt = now
				logger.Info("refund awaiting gateway settlement", "refund_id", r.ID)
				return tx.UpdateRefund(ctx, r)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record refund outcome: %w", err)
	}

	l.commit(ctx, tr)
	return final, outcome
}

// transitions collects the effects of a transaction to report once it commits.
type transitions struct {
	events  []domain.LifecycleEvent
	moves   [][2]domain.PaymentStatus
	refunds []domain.RefundStatus
}

func (t *transitions) move(from, to domain.PaymentStatus) {
	if from != to {
		t.moves = append(t.moves, [2]domain.PaymentStatus{from, to})
	}
}

func (l *Lifecycle) commit(ctx context.Context, t transitions) {
	for _, m := range t.moves {
		l.recordTransition(m[0], m[1])
	}
	for _, s := range t.refunds {
		l.metrics.Refund(string(s))
	}
	l.publish(ctx, t.events...)
}

// completeRefundTx settles r and adds it to the payment's refunded amount,
// moving the payment to REFUNDED once nothing is left to refund.
func (l *Lifecycle) completeRefundTx(ctx context.Context, tx ports.Store, p *domain.Payment, r *domain.Refund, gatewayRefundID string, tr *transitions) (*domain.Payment, error) {
	now := l.now()
	refunded := p.RefundedAmount.Add(r.Amount)
	if refunded.GreaterThan(p.Amount) {
		return nil, domain.NewRefundExceedsBalanceError(r.Amount, p.Amount.Sub(p.RefundedAmount))
	}

	r.Complete(gatewayRefundID, now)
	if err := tx.UpdateRefund(ctx, r); err != nil {
		return nil, err
	}

	update := domain.PaymentUpdate{
		ExpectedVersion: p.Version,
		RefundedAmount:  &refunded,
	}
	if refunded.GreaterThanOrEqual(p.Amount) {
		if err := p.CanTransitionTo(domain.StatusRefunded); err != nil {
			return nil, err
		}
		update.Status = ptr(domain.StatusRefunded)
	}

	updated, err := tx.UpdatePayment(ctx, p.ID, update)
	if err != nil {
		return nil, err
	}

	tr.refunds = append(tr.refunds, domain.RefundCompleted)
	tr.events = append(tr.events, domain.NewRefundEvent(domain.LifecycleRefundCompleted, updated, r, now))
	if updated.Status == domain.StatusRefunded {
		tr.move(p.Status, domain.StatusRefunded)
		tr.events = append(tr.events, domain.NewPaymentEvent(domain.LifecyclePaymentRefunded, updated, now))
	}

	logging.FromContextOr(ctx, l.logger).Info("refund completed",
		"payment_id", p.ID,
		"refund_id", r.ID,
		"amount", domain.FormatAmount(r.Amount, p.Currency),
		"refunded_total", domain.FormatAmount(refunded, p.Currency),
		"status", updated.Status,
	)
	return updated, nil
}

func (l *Lifecycle) failRefundTx(ctx context.Context, tx ports.Store, p *domain.Payment, r *domain.Refund, reason string, tr *transitions) error {
	now := l.now()
	r.Fail(reason, now)
	if err := tx.UpdateRefund(ctx, r); err != nil {
		return err
	}
	tr.refunds = append(tr.refunds, domain.RefundFailed)
	tr.events = append(tr.events, domain.NewRefundEvent(domain.LifecycleRefundFailed, p, r, now))
	logging.FromContextOr(ctx, l.logger).Warn("refund failed", "payment_id", p.ID, "refund_id", r.ID, "reason", reason)
	return nil
}
