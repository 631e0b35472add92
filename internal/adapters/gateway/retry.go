package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
)

// RetryGateway retries retryable failures of the wrapped adapter with exponential backoff.
// Every call carries an idempotency key, so a repeated request cannot settle twice.
type RetryGateway struct {
	inner      ports.GatewayAdapter
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryGateway(inner ports.GatewayAdapter, cfg config.RetryConfig) *RetryGateway {
	maxRetries := int(cfg.MaxRetries)
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryGateway{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: maxRetries,
	}
}

func (r *RetryGateway) Name() string {
	return r.inner.Name()
}

// CreateCharge with retry logic
func (r *RetryGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	return retry(ctx, r, func(ctx context.Context) (*domain.ChargeResult, error) {
		return r.inner.CreateCharge(ctx, req)
	})
}

// CaptureCharge with retry logic
func (r *RetryGateway) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	return retry(ctx, r, func(ctx context.Context) (*domain.ChargeResult, error) {
		return r.inner.CaptureCharge(ctx, externalID, idempotencyKey)
	})
}

// GetCharge with retry logic
func (r *RetryGateway) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	return retry(ctx, r, func(ctx context.Context) (*domain.ChargeResult, error) {
		return r.inner.GetCharge(ctx, externalID)
	})
}

// CancelCharge with retry logic
func (r *RetryGateway) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	return retry(ctx, r, func(ctx context.Context) (*domain.ChargeResult, error) {
		return r.inner.CancelCharge(ctx, externalID, idempotencyKey)
	})
}

// RefundCharge with retry logic
func (r *RetryGateway) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	return retry(ctx, r, func(ctx context.Context) (*domain.RefundResult, error) {
		return r.inner.RefundCharge(ctx, req)
	})
}

// Generic retry helper
func retry[T any](ctx context.Context, r *RetryGateway, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
			}
			return nil, err
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !domain.IsRetryableError(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			if err := sleep(ctx, r.backoff(attempt)); err != nil {
				break
			}
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff calculation with exponential delay and jitter
func (r *RetryGateway) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitterRange := int64(r.baseDelay)
	if jitterRange <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(jitterRange))
}
