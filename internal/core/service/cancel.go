package service

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/google/uuid"
)

// CancelPayment moves a PENDING payment to CANCELLED. A payment already
// submitted to its gateway is cancelled there first.
func (l *Lifecycle) CancelPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	logger := logging.FromContextOr(ctx, l.logger).With("payment_id", id)

	var (
		cancelled *domain.Payment
		claimed   *domain.Payment
	)
	err := l.withLock(ctx, id, func() error {
		p, err := l.store.LoadPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := p.CanTransitionTo(domain.StatusCancelled); err != nil {
			return err
		}
		if p.InFlight(l.now(), l.opts.GatewayTimeout) {
			return domain.NewProcessingInFlightError(id.String())
		}

		if p.GatewayPaymentID == nil {
			cancelled, err = l.store.UpdatePayment(ctx, id, domain.PaymentUpdate{
				ExpectedVersion:          p.Version,
				Status:                   ptr(domain.StatusCancelled),
				ClearProcessingStartedAt: true,
			})
			return err
		}

		startedAt := l.now()
		claimed, err = l.store.UpdatePayment(ctx, id, domain.PaymentUpdate{
			ExpectedVersion:        p.Version,
			SetProcessingStartedAt: &startedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if cancelled != nil {
		l.afterCancel(ctx, cancelled)
		return cancelled, nil
	}

	adapter, err := l.gateways.Adapter(claimed.Gateway)
	if err != nil {
		l.releaseClaim(ctx, id, logger)
		return nil, err
	}

	callCtx, cancel := l.gatewayContext(ctx)
	result, gwErr := adapter.CancelCharge(callCtx, *claimed.GatewayPaymentID, "cancel-"+id.String())
	cancel()

	var outcome error
	err = l.withLock(ctx, id, func() error {
		p, err := l.store.LoadPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusPending {
			outcome = domain.NewInvalidTransitionError(p.Status, domain.StatusCancelled)
			return nil
		}

		update := domain.PaymentUpdate{
			ExpectedVersion:          p.Version,
			ClearProcessingStartedAt: true,
		}
		switch {
		case gwErr != nil && domain.IsRetryableError(gwErr):
			outcome = domain.NewGatewayUnavailableError(p.Gateway, gwErr)
		case gwErr != nil:
			outcome = domain.NewGatewayRejectedError(gatewayReason(gwErr), gwErr)
		case result.Status == domain.ProviderCanceled, result.Status == domain.ProviderFailed:
			update.Status = ptr(domain.StatusCancelled)
		default:
			outcome = domain.NewConflictError(fmt.Sprintf("gateway reports payment %s as %s", id, result.Status))
		}

		cancelled, err = l.store.UpdatePayment(ctx, id, update)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record cancellation: %w", err)
	}
	if outcome != nil {
		logger.Warn("payment cancellation not applied", "error", outcome)
		return nil, outcome
	}

	l.afterCancel(ctx, cancelled)
	return cancelled, nil
}

func (l *Lifecycle) afterCancel(ctx context.Context, p *domain.Payment) {
	l.recordTransition(domain.StatusPending, domain.StatusCancelled)
	logging.FromContextOr(ctx, l.logger).Info("payment cancelled", "payment_id", p.ID)
	l.publish(ctx, domain.NewPaymentEvent(domain.LifecyclePaymentCancelled, p, l.now()))
}
