package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chargeRequest(minor int64) domain.ChargeRequest {
	id := uuid.New()
	return domain.ChargeRequest{
		PaymentID:      id,
		Amount:         domain.FromMinorUnits(minor, "RUB"),
		AmountMinor:    minor,
		Currency:       "RUB",
		Method:         domain.MethodCard,
		IdempotencyKey: "charge-" + id.String(),
	}
}

func TestSandbox_Charges(t *testing.T) {
	ctx := context.Background()
	sb := NewSandbox(0)

	t.Run("succeeds by default", func(t *testing.T) {
		res, err := sb.CreateCharge(ctx, chargeRequest(100000))
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderSucceeded, res.Status)
		assert.NotEmpty(t, res.ExternalID)
	})

	t.Run("declines amounts ending in 02", func(t *testing.T) {
		res, err := sb.CreateCharge(ctx, chargeRequest(100002))
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderFailed, res.Status)
		assert.Contains(t, res.FailureReason, "declined")
	})

	t.Run("times out amounts ending in 05", func(t *testing.T) {
		_, err := sb.CreateCharge(ctx, chargeRequest(100005))
		require.Error(t, err)
		assert.True(t, domain.IsRetryableError(err))
	})

	t.Run("same idempotency key returns the same charge", func(t *testing.T) {
		req := chargeRequest(5000)
		first, err := sb.CreateCharge(ctx, req)
		require.NoError(t, err)
		second, err := sb.CreateCharge(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ExternalID, second.ExternalID)
	})

	t.Run("pending charge settles later", func(t *testing.T) {
		res, err := sb.CreateCharge(ctx, chargeRequest(1007))
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderPending, res.Status)
		assert.NotEmpty(t, res.ConfirmationURL)

		assert.True(t, sb.Settle(res.ExternalID, domain.ProviderSucceeded))
		got, err := sb.GetCharge(ctx, res.ExternalID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderSucceeded, got.Status)
	})

	t.Run("cancel of succeeded charge is rejected", func(t *testing.T) {
		res, err := sb.CreateCharge(ctx, chargeRequest(2000))
		require.NoError(t, err)
		_, err = sb.CancelCharge(ctx, res.ExternalID, "cancel-1")
		require.Error(t, err)
		assert.False(t, domain.IsRetryableError(err))
	})

	t.Run("latency honours context", func(t *testing.T) {
		slow := NewSandbox(time.Second)
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := slow.CreateCharge(ctx, chargeRequest(1000))
		require.Error(t, err)
		assert.True(t, domain.IsRetryableError(err))
	})
}

func TestSandbox_Refunds(t *testing.T) {
	ctx := context.Background()
	sb := NewSandbox(0)
	charge, err := sb.CreateCharge(ctx, chargeRequest(100000))
	require.NoError(t, err)

	refund := func(minor int64, key string) (*domain.RefundResult, error) {
		return sb.RefundCharge(ctx, domain.RefundRequest{
			ExternalID:     charge.ExternalID,
			Amount:         domain.FromMinorUnits(minor, "RUB"),
			AmountMinor:    minor,
			Currency:       "RUB",
			IdempotencyKey: key,
		})
	}

	first, err := refund(60000, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderSucceeded, first.Status)

	replay, err := refund(60000, "r1")
	require.NoError(t, err)
	assert.Equal(t, first.ExternalID, replay.ExternalID)

	_, err = refund(60000, "r2")
	require.Error(t, err)
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestSandboxWebhook(t *testing.T) {
	hook := NewSandboxWebhook("sb-secret")
	paymentID := uuid.New()
	amount := decimal.NewFromInt(1000)
	payload, err := json.Marshal(SandboxNotification{
		ID:        "evt-1",
		Type:      "payment.succeeded",
		PaymentID: paymentID.String(),
		Amount:    &amount,
		Currency:  "rub",
	})
	require.NoError(t, err)

	require.NoError(t, hook.Verify(payload, Sign("sb-secret", payload)))
	assert.ErrorIs(t, hook.Verify(payload, Sign("sb-secret", append(payload, ' '))), ErrInvalidSignature)

	evt, err := hook.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, domain.EventPaymentSucceeded, evt.Type)
	assert.Equal(t, paymentID, *evt.PaymentID)
	assert.Equal(t, "RUB", evt.Currency)

	_, err = hook.Parse([]byte(`{"id":"evt-2","type":"payment.succeeded","payment_id":"not-a-uuid"}`))
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}

// flakyGateway fails its first failures calls with err, then delegates to the sandbox.
type flakyGateway struct {
	*Sandbox
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.Sandbox.CreateCharge(ctx, req)
}

func TestRetryGateway(t *testing.T) {
	ctx := context.Background()
	cfg := config.RetryConfig{BaseDelay: time.Millisecond, MaxRetries: 3}

	t.Run("retries retryable errors", func(t *testing.T) {
		inner := &flakyGateway{Sandbox: NewSandbox(0), failures: 2, err: &Error{Provider: "sandbox", StatusCode: 503}}
		res, err := NewRetryGateway(inner, cfg).CreateCharge(ctx, chargeRequest(1000))
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderSucceeded, res.Status)
		assert.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("does not retry rejections", func(t *testing.T) {
		inner := &flakyGateway{Sandbox: NewSandbox(0), failures: 5, err: &Error{Provider: "sandbox", StatusCode: 402}}
		_, err := NewRetryGateway(inner, cfg).CreateCharge(ctx, chargeRequest(1000))
		require.Error(t, err)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		inner := &flakyGateway{Sandbox: NewSandbox(0), failures: 5, err: &Error{Provider: "sandbox", StatusCode: 500}}
		_, err := NewRetryGateway(inner, cfg).CreateCharge(ctx, chargeRequest(1000))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum retries exceeded")
		assert.True(t, domain.IsRetryableError(err))
		assert.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		inner := &flakyGateway{Sandbox: NewSandbox(0), failures: 5, err: &Error{Provider: "sandbox", StatusCode: 500}}
		slow := NewRetryGateway(inner, config.RetryConfig{BaseDelay: time.Hour, MaxRetries: 3})
		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := slow.CreateCharge(ctx, chargeRequest(1000))
		require.Error(t, err)
		assert.Equal(t, int32(1), inner.calls.Load())
	})
}

func TestRegistry(t *testing.T) {
	sandbox := NewSandbox(0)
	stripe := NewStripe("http://localhost", "sk", time.Second)

	reg := NewRegistry()
	reg.Register(sandbox, NewSandboxWebhook("s"))
	reg.Register(stripe, NewStripeWebhook("w"))
	require.NoError(t, reg.Route(domain.MethodCard, StripeName))

	got, err := reg.ForMethod(domain.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, StripeName, got.Name())

	got, err = reg.ForMethod(domain.MethodBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, SandboxName, got.Name(), "unrouted methods fall back to the first adapter")

	_, err = reg.Adapter("paypal")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))

	_, err = reg.WebhookParser("paypal")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))

	assert.Error(t, reg.Route(domain.MethodCrypto, "paypal"))
	assert.Equal(t, []string{SandboxName, StripeName}, reg.Names())

	empty := NewRegistry()
	_, err = empty.ForMethod(domain.MethodCard)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}

func TestInstrumented_RecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	gw := NewInstrumented(NewSandbox(0), metrics)

	_, err := gw.CreateCharge(context.Background(), chargeRequest(1000))
	require.NoError(t, err)
	_, err = gw.CreateCharge(context.Background(), chargeRequest(1005))
	require.Error(t, err)
	_, err = gw.GetCharge(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "create_charge", "success"))
	assert.Equal(t, 1.0, counterValue(t, reg, "create_charge", "unavailable"))
	assert.Equal(t, 1.0, counterValue(t, reg, "get_charge", "rejected"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, operation, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "gateway_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == operation && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
