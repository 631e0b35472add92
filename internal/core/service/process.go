package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/google/uuid"
)

type processResult struct {
	payment *domain.Payment
	err     error
}

// ProcessPayment settles a PENDING payment with its gateway.
//
// Concurrent calls for the same id share one attempt. A caller that finds
// another instance's attempt in flight waits for its outcome. The gateway call
// outlives the caller's context: a disconnected caller gets ctx.Err() while
// settlement continues.
func (l *Lifecycle) ProcessPayment(ctx context.Context, id uuid.UUID, details domain.PaymentDetails) (*domain.Payment, error) {
	detached := context.WithoutCancel(ctx)
	ch := l.flight.DoChan(id.String(), func() (any, error) {
		p, err := l.processPayment(detached, id, &details)
		return processResult{payment: p, err: err}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		out := res.Val.(processResult)
		return copyOf(out.payment), out.err
	}
}

// ReconcilePayment re-checks a PENDING payment whose last attempt ended
// without a final answer: it polls the charge when the gateway returned one,
// and otherwise re-submits it under the same idempotency key. Payments that
// were never submitted are left alone.
func (l *Lifecycle) ReconcilePayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	v, _, _ := l.flight.Do(id.String(), func() (any, error) {
		p, err := l.processPayment(ctx, id, nil)
		return processResult{payment: p, err: err}, nil
	})
	out := v.(processResult)
	return copyOf(out.payment), out.err
}

func copyOf(p *domain.Payment) *domain.Payment {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// processPayment runs one attempt. details is nil when resuming an earlier attempt.
func (l *Lifecycle) processPayment(ctx context.Context, id uuid.UUID, details *domain.PaymentDetails) (*domain.Payment, error) {
	logger := logging.FromContextOr(ctx, l.logger).With("payment_id", id)

	var claimed *domain.Payment
	var early *domain.Payment
	var earlyErr error

	err := l.withLock(ctx, id, func() error {
		p, err := l.store.LoadPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusPending {
			if details == nil {
				early = p
				return nil
			}
			return domain.NewInvalidTransitionError(p.Status, domain.StatusSuccess)
		}
		if p.InFlight(l.now(), l.opts.GatewayTimeout) {
			return domain.NewProcessingInFlightError(id.String())
		}

		if details == nil {
			if !p.Attempted() {
				early = p
				return nil
			}
		} else if reason := l.checkDetails(p, details); reason != "" {
			failed, err := l.failPayment(ctx, p, reason, nil)
			if err != nil {
				return err
			}
			early = failed
			earlyErr = domain.NewGatewayRejectedError(reason, nil)
			return nil
		}

		startedAt := l.now()
		claimed, err = l.store.UpdatePayment(ctx, id, domain.PaymentUpdate{
			ExpectedVersion:        p.Version,
			SetProcessingStartedAt: &startedAt,
			SetLastAttemptAt:       &startedAt,
		})
		return err
	})
	if err != nil {
		if details == nil {
			return nil, err
		}
		if domain.IsErrorCode(err, domain.ErrCodeProcessingInFlight) ||
			domain.IsErrorCode(err, domain.ErrCodeConcurrentModification) {
			logger.Info("payment already in flight, waiting for outcome")
			return l.awaitOutcome(ctx, id)
		}
		return nil, err
	}
	if claimed == nil {
		return early, earlyErr
	}

	adapter, err := l.gateways.Adapter(claimed.Gateway)
	if err != nil {
		l.releaseClaim(ctx, id, logger)
		return nil, err
	}

	callCtx, cancel := l.gatewayContext(ctx)
	result, gwErr := l.charge(callCtx, adapter, claimed)
	cancel()

	return l.finalizeCharge(ctx, claimed, result, gwErr)
}

// checkDetails returns a decline reason for unusable payment details.
func (l *Lifecycle) checkDetails(p *domain.Payment, details *domain.PaymentDetails) string {
	if p.Method != domain.MethodCard {
		return ""
	}
	if details.Card == nil {
		return "card details are required"
	}
	if err := l.validate.Struct(details.Card); err != nil {
		return "invalid card details: " + err.Error()
	}
	if details.Card.Expired(l.now()) {
		return "card expired"
	}
	return ""
}

// charge creates the provider charge, or re-checks it when one already exists,
// and captures it when the provider is waiting for capture.
func (l *Lifecycle) charge(ctx context.Context, adapter ports.GatewayAdapter, p *domain.Payment) (*domain.ChargeResult, error) {
	var (
		result *domain.ChargeResult
		err    error
	)
	if p.GatewayPaymentID != nil {
		result, err = adapter.GetCharge(ctx, *p.GatewayPaymentID)
	} else {
		customerID := ""
		if p.CustomerID != nil {
			customerID = *p.CustomerID
		}
		result, err = adapter.CreateCharge(ctx, domain.ChargeRequest{
			PaymentID:      p.ID,
			Amount:         p.Amount,
			AmountMinor:    domain.ToMinorUnits(p.Amount, p.Currency),
			Currency:       p.Currency,
			Method:         p.Method,
			Description:    p.Description,
			ReturnURL:      p.ReturnURL,
			CustomerID:     customerID,
			IdempotencyKey: p.ChargeIdempotencyKey(),
		})
	}
	if err != nil {
		return nil, err
	}

	if result.Status == domain.ProviderRequiresCapture {
		captured, err := adapter.CaptureCharge(ctx, result.ExternalID, "capture-"+p.ID.String())
		if err != nil {
			return result, err
		}
		if captured.ConfirmationURL == "" {
			captured.ConfirmationURL = result.ConfirmationURL
		}
		result = captured
	}
	return result, nil
}

// finalizeCharge records the gateway outcome on the claimed payment.
func (l *Lifecycle) finalizeCharge(ctx context.Context, claimed *domain.Payment, result *domain.ChargeResult, gwErr error) (*domain.Payment, error) {
	logger := logging.FromContextOr(ctx, l.logger).With("payment_id", claimed.ID, "gateway", claimed.Gateway)

	var (
		final     *domain.Payment
		outcome   error
		published []domain.LifecycleEvent
	)

	err := l.withLock(ctx, claimed.ID, func() error {
		p, err := l.store.LoadPayment(ctx, claimed.ID)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusPending {
			logger.Info("payment settled elsewhere during gateway call", "status", p.Status)
			final = p
			return nil
		}

		now := l.now()
		update := domain.PaymentUpdate{
			ExpectedVersion:          p.Version,
			ClearProcessingStartedAt: true,
		}
		if result != nil && result.ExternalID != "" {
			update.GatewayPaymentID = ptr(result.ExternalID)
		}

		switch {
		case gwErr != nil && domain.IsRetryableError(gwErr):
			logger.Warn("gateway unavailable, payment left pending", "error", gwErr)
			outcome = domain.NewGatewayUnavailableError(p.Gateway, gwErr)

		case gwErr != nil:
			reason := gatewayReason(gwErr)
			update.Status = ptr(domain.StatusFailed)
			update.ErrorReason = &reason
			outcome = domain.NewGatewayRejectedError(reason, gwErr)

		case result.Status == domain.ProviderSucceeded:
			update.Status = ptr(domain.StatusSuccess)
			update.ProcessedAt = &now

		case result.Status == domain.ProviderFailed, result.Status == domain.ProviderCanceled:
			reason := result.FailureReason
			if reason == "" {
				reason = "declined by gateway"
			}
			update.Status = ptr(domain.StatusFailed)
			update.ErrorReason = &reason
			outcome = domain.NewGatewayRejectedError(reason, nil)

		default:
			if result.ConfirmationURL != "" {
				update.ConfirmationURL = ptr(result.ConfirmationURL)
			}
			logger.Info("payment awaiting provider confirmation", "provider_status", result.Status)
		}

		final, err = l.store.UpdatePayment(ctx, p.ID, update)
		if err != nil {
			return err
		}
		l.recordTransition(p.Status, final.Status)

		switch final.Status {
		case domain.StatusSuccess:
			published = append(published, domain.NewPaymentEvent(domain.LifecyclePaymentSucceeded, final, now))
		case domain.StatusFailed:
			published = append(published, domain.NewPaymentEvent(domain.LifecyclePaymentFailed, final, now))
		}
		return nil
	})
	if err != nil {
		if gwErr == nil && result != nil && result.Status == domain.ProviderSucceeded {
			logger.Error("charge succeeded but could not be recorded, reconciler will retry", "error", err)
		}
		return nil, fmt.Errorf("failed to record gateway outcome: %w", err)
	}

	if final.Status != domain.StatusPending {
		logger.Info("payment processed", "status", final.Status)
	}
	l.publish(ctx, published...)
	return final, outcome
}

// failPayment marks p FAILED. The caller holds the payment's lock.
func (l *Lifecycle) failPayment(ctx context.Context, p *domain.Payment, reason string, externalID *string) (*domain.Payment, error) {
	if err := p.CanTransitionTo(domain.StatusFailed); err != nil {
		return nil, err
	}
	failed, err := l.store.UpdatePayment(ctx, p.ID, domain.PaymentUpdate{
		ExpectedVersion:          p.Version,
		Status:                   ptr(domain.StatusFailed),
		ErrorReason:              &reason,
		GatewayPaymentID:         externalID,
		ClearProcessingStartedAt: true,
	})
	if err != nil {
		return nil, err
	}
	l.recordTransition(p.Status, domain.StatusFailed)
	logging.FromContextOr(ctx, l.logger).Info("payment failed", "payment_id", p.ID, "reason", reason)
	l.publish(ctx, domain.NewPaymentEvent(domain.LifecyclePaymentFailed, failed, l.now()))
	return failed, nil
}

func (l *Lifecycle) releaseClaim(ctx context.Context, id uuid.UUID, logger *slog.Logger) {
	err := l.withLock(ctx, id, func() error {
		p, err := l.store.LoadPayment(ctx, id)
		if err != nil {
			return err
		}
		_, err = l.store.UpdatePayment(ctx, id, domain.PaymentUpdate{
			ExpectedVersion:          p.Version,
			ClearProcessingStartedAt: true,
		})
		return err
	})
	if err != nil {
		logger.Warn("failed to release processing marker", "error", err)
	}
}

// unresolvedError reports a PENDING payment whose attempt has ended. A charge
// awaiting customer confirmation is not an error.
func (l *Lifecycle) unresolvedError(p *domain.Payment) error {
	if p.GatewayPaymentID != nil {
		return nil
	}
	return domain.NewGatewayUnavailableError(p.Gateway, errors.New("payment attempt ended without a result"))
}

// awaitOutcome polls the store until another attempt finishes or the gateway timeout passes.
func (l *Lifecycle) awaitOutcome(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(l.opts.GatewayTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, domain.NewProcessingInFlightError(id.String())
		case <-ticker.C:
			p, err := l.store.LoadPayment(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("error checking payment status: %w", err)
			}
			if p.Status == domain.StatusFailed {
				reason := "declined by gateway"
				if p.ErrorReason != nil {
					reason = *p.ErrorReason
				}
				return p, domain.NewGatewayRejectedError(reason, nil)
			}
			if p.Status != domain.StatusPending {
				return p, nil
			}
			if p.ProcessingStartedAt == nil {
				return p, l.unresolvedError(p)
			}
		}
	}
}
