package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundPayment_PartialThenExceeding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.successfulPayment(t, 1000)

	first, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(600)})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, first.Status)

	afterFirst, err := f.lifecycle.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, afterFirst.Status, "partial refund keeps the payment in SUCCESS")
	assert.True(t, afterFirst.RefundableBalance(decimal.Zero).Equal(rub(400)))

	_, err = f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(600)})
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))
	assert.Equal(t, 1, f.gateway.GetCalls("RefundCharge"))

	rest, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID})
	require.NoError(t, err)
	assert.True(t, rest.Amount.Equal(rub(400)))

	final, err := f.lifecycle.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, final.Status)

	refunds, err := f.lifecycle.ListRefunds(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
}

func TestRefundPayment_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: uuid.New()})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
	})

	t.Run("failed payment", func(t *testing.T) {
		f := newFixture(t)
		p := f.seed(t, domain.StatusFailed)
		_, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		p := f.successfulPayment(t, 1000)
		_, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(0)})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))
	})

	t.Run("gateway rejection fails the refund and releases the balance", func(t *testing.T) {
		f := newFixture(t)
		p := f.successfulPayment(t, 1000)
		f.gateway.RefundChargeFn = func(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
			return &domain.RefundResult{ExternalID: "re_x", Status: domain.ProviderFailed, FailureReason: "charge_disputed"}, nil
		}

		refund, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayRejected))
		require.NotNil(t, refund)
		assert.Equal(t, domain.RefundFailed, refund.Status)

		f.gateway.RefundChargeFn = nil
		ok, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID})
		require.NoError(t, err)
		assert.True(t, ok.Amount.Equal(rub(1000)))
	})
}

func TestRefundPayment_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.successfulPayment(t, 1000)

	cmd := RefundCommand{PaymentID: p.ID, Amount: amountPtr(300), IdempotencyKey: "refund-key-1"}
	first, err := f.lifecycle.RefundPayment(ctx, cmd)
	require.NoError(t, err)
	second, err := f.lifecycle.RefundPayment(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.gateway.GetCalls("RefundCharge"))

	other := f.successfulPayment(t, 1000)
	_, err = f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: other.ID, IdempotencyKey: "refund-key-1"})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConflict))
}

func TestRefundPayment_GatewayUnavailableKeepsReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.successfulPayment(t, 1000)

	f.gateway.RefundChargeFn = func(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
		return nil, context.DeadlineExceeded
	}
	pending, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(700)})
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable))
	require.NotNil(t, pending)
	assert.Equal(t, domain.RefundPending, pending.Status)

	f.gateway.RefundChargeFn = nil
	_, err = f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(500)})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount), "pending refunds reserve their amount")

	var keys []string
	f.gateway.RefundChargeFn = func(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
		keys = append(keys, req.IdempotencyKey)
		return &domain.RefundResult{ExternalID: "re_retry", Status: domain.ProviderSucceeded}, nil
	}
	retried, err := f.lifecycle.RetryRefund(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, retried.Status)
	assert.Equal(t, []string{"refund-" + pending.ID.String()}, keys)

	stored, err := f.lifecycle.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.RefundedAmount.Equal(rub(700)))
	assert.Equal(t, domain.StatusSuccess, stored.Status)
}

func TestRefundPayment_ConcurrentNeverExceedsAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.successfulPayment(t, 1000)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID, Amount: amountPtr(200)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			domain.IsErrorCode(err, domain.ErrCodeInvalidAmount) || domain.IsErrorCode(err, domain.ErrCodeInvalidTransition),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 5, succeeded)

	final, err := f.lifecycle.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, final.Status)
	assert.True(t, final.RefundedAmount.Equal(rub(1000)))
}

// Random refund sequences never refund more than the payment amount in total.
func TestRefundPayment_CumulativeBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for run := 0; run < 25; run++ {
		f := newFixture(t)
		p := f.successfulPayment(t, 1000)

		for i := 0; i < 12; i++ {
			cmd := RefundCommand{PaymentID: p.ID}
			if rng.Intn(6) != 0 {
				kopecks := rng.Int63n(60000) + 1
				amount := decimal.New(kopecks, -2)
				cmd.Amount = &amount
			}
			_, err := f.lifecycle.RefundPayment(ctx, cmd)
			if err != nil {
				require.True(t,
					domain.IsErrorCode(err, domain.ErrCodeInvalidAmount) || domain.IsErrorCode(err, domain.ErrCodeInvalidTransition),
					"unexpected error: %v", err)
			}

			refunds, err := f.lifecycle.ListRefunds(ctx, p.ID)
			require.NoError(t, err)
			total := decimal.Zero
			for _, r := range refunds {
				if r.Status == domain.RefundCompleted {
					total = total.Add(r.Amount)
				}
			}
			stored, err := f.lifecycle.GetPayment(ctx, p.ID)
			require.NoError(t, err)

			require.True(t, total.LessThanOrEqual(stored.Amount), "refunded %s of %s", total, stored.Amount)
			require.True(t, total.Equal(stored.RefundedAmount))
			require.Equal(t, total.Equal(stored.Amount), stored.Status == domain.StatusRefunded)
		}
	}
}
