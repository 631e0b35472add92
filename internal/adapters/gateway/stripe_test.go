package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripe_CreateCharge(t *testing.T) {
	paymentID := uuid.New()
	var form url.Values
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		headers = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded","amount":100000,"currency":"rub"}`))
	}))
	defer server.Close()

	client := NewStripe(server.URL+"/v1", "sk_test_abc", 5*time.Second)
	res, err := client.CreateCharge(context.Background(), domain.ChargeRequest{
		PaymentID:      paymentID,
		Amount:         decimal.NewFromInt(1000),
		AmountMinor:    100000,
		Currency:       "RUB",
		Method:         domain.MethodCard,
		Description:    "order 42",
		IdempotencyKey: "charge-" + paymentID.String(),
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.ExternalID)
	assert.Equal(t, domain.ProviderSucceeded, res.Status)

	assert.Equal(t, "100000", form.Get("amount"))
	assert.Equal(t, "rub", form.Get("currency"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
	assert.Equal(t, paymentID.String(), form.Get("metadata[payment_id]"))
	assert.Equal(t, "Bearer sk_test_abc", headers.Get("Authorization"))
	assert.Equal(t, "charge-"+paymentID.String(), headers.Get("Idempotency-Key"))
	assert.Equal(t, "application/x-www-form-urlencoded", headers.Get("Content-Type"))
}

func TestStripe_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		code      string
	}{
		{
			name:   "card declined",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`,
			code:   "insufficient_funds",
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      `{"error":{"type":"api_error","message":"Something went wrong"}}`,
			retryable: true,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `not json`,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewStripe(server.URL, "sk_test", time.Second)
			_, err := client.GetCharge(context.Background(), "pi_1")
			require.Error(t, err)

			var gwErr *Error
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, tt.status, gwErr.StatusCode)
			assert.Equal(t, tt.retryable, gwErr.IsRetryable())
			assert.Equal(t, tt.retryable, domain.IsRetryableError(err))
			if tt.code != "" {
				assert.Equal(t, tt.code, gwErr.Code)
			}
		})
	}
}

func TestStripe_UnreachableIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewStripe(baseURL, "sk_test", time.Second)
	_, err := client.GetCharge(context.Background(), "pi_1")
	require.Error(t, err)
	assert.True(t, domain.IsRetryableError(err))
}

func TestStripeIntentStatus(t *testing.T) {
	tests := map[string]domain.ProviderStatus{
		"succeeded":               domain.ProviderSucceeded,
		"requires_confirmation":   domain.ProviderRequiresCapture,
		"requires_payment_method": domain.ProviderRequiresCapture,
		"requires_action":         domain.ProviderPending,
		"processing":              domain.ProviderPending,
		"canceled":                domain.ProviderCanceled,
	}
	for in, want := range tests {
		assert.Equal(t, want, stripeIntentStatus(in), in)
	}
}

func TestStripeWebhook_Verify(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Unix(1_700_000_000, 0)
	hook := NewStripeWebhook("whsec_test")
	hook.now = func() time.Time { return now }

	t.Run("valid signature", func(t *testing.T) {
		assert.NoError(t, hook.Verify(payload, SignStripe("whsec_test", payload, now)))
	})

	t.Run("one of several v1 entries matches", func(t *testing.T) {
		sig := SignStripe("whsec_test", payload, now) + ",v1=deadbeef"
		assert.NoError(t, hook.Verify(payload, sig))
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := SignStripe("whsec_test", payload, now)
		assert.ErrorIs(t, hook.Verify([]byte(`{"id":"evt_2"}`), sig), ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.ErrorIs(t, hook.Verify(payload, SignStripe("other", payload, now)), ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		sig := SignStripe("whsec_test", payload, now.Add(-10*time.Minute))
		assert.ErrorIs(t, hook.Verify(payload, sig), ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.ErrorIs(t, hook.Verify(payload, ""), ErrMissingSignature)
	})

	t.Run("no secret configured", func(t *testing.T) {
		unset := NewStripeWebhook("")
		assert.ErrorIs(t, unset.Verify(payload, SignStripe("", payload, now)), ErrNoWebhookSecret)
	})
}

func TestStripeWebhook_Parse(t *testing.T) {
	paymentID := uuid.New()
	hook := NewStripeWebhook("whsec_test")

	t.Run("payment succeeded", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","amount":100000,"currency":"rub","metadata":{"payment_id":"` + paymentID.String() + `"}}}}`)
		evt, err := hook.Parse(payload)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", evt.EventID)
		assert.Equal(t, domain.EventPaymentSucceeded, evt.Type)
		assert.Equal(t, "pi_1", evt.ExternalID)
		require.NotNil(t, evt.PaymentID)
		assert.Equal(t, paymentID, *evt.PaymentID)
		require.NotNil(t, evt.Amount)
		assert.True(t, decimal.NewFromInt(1000).Equal(*evt.Amount))
		assert.Equal(t, "RUB", evt.Currency)
	})

	t.Run("payment failed carries reason", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","status":"requires_payment_method","last_payment_error":{"message":"card declined"}}}}`)
		evt, err := hook.Parse(payload)
		require.NoError(t, err)
		assert.Equal(t, domain.EventPaymentFailed, evt.Type)
		assert.Equal(t, "card declined", evt.Reason)
		assert.Nil(t, evt.PaymentID)
	})

	t.Run("refund updated", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","type":"refund.updated","data":{"object":{"id":"re_1","status":"succeeded","payment_intent":"pi_1","amount":60000,"currency":"rub"}}}`)
		evt, err := hook.Parse(payload)
		require.NoError(t, err)
		assert.Equal(t, domain.EventRefundCompleted, evt.Type)
		assert.Equal(t, "re_1", evt.RefundExternalID)
		assert.Equal(t, "pi_1", evt.ExternalID)
	})

	t.Run("unknown type", func(t *testing.T) {
		evt, err := hook.Parse([]byte(`{"id":"evt_4","type":"customer.created","data":{"object":{}}}`))
		require.NoError(t, err)
		assert.Equal(t, domain.EventUnknown, evt.Type)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := hook.Parse([]byte(`{`))
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})
}
