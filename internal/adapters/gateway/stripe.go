package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
)

const StripeName = "stripe"

// Stripe talks to the Stripe PaymentIntents API. Amounts are sent in minor units.
type Stripe struct {
	client *httpClient
}

func NewStripe(baseURL, secretKey string, timeout time.Duration) *Stripe {
	authorize := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+secretKey)
	}
	return &Stripe{
		client: newHTTPClient(StripeName, baseURL, timeout, authorize, parseStripeError),
	}
}

func (s *Stripe) Name() string {
	return StripeName
}

type stripeIntent struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata"`
	CancellationReason string            `json:"cancellation_reason"`
	LastPaymentError   *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type stripeRefund struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentIntent string            `json:"payment_intent"`
	FailureReason string            `json:"failure_reason"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeErrorBody struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func parseStripeError(status int, body []byte) *Error {
	gwErr := &Error{Provider: StripeName, StatusCode: status}
	var parsed stripeErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		gwErr.Message = http.StatusText(status)
		return gwErr
	}
	gwErr.Code = parsed.Error.Code
	if parsed.Error.DeclineCode != "" {
		gwErr.Code = parsed.Error.DeclineCode
	}
	gwErr.Message = parsed.Error.Message
	return gwErr
}

func (s *Stripe) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("metadata[payment_id]", req.PaymentID.String())
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.CustomerID != "" {
		form.Set("metadata[customer_id]", req.CustomerID)
	}

	intent, err := send[stripeIntent](ctx, s.client,
		formRequest(http.MethodPost, "/payment_intents", form, "Idempotency-Key", req.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	return intent.toResult(), nil
}

// CaptureCharge confirms the intent. Stripe settles it once confirmed.
func (s *Stripe) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	intent, err := send[stripeIntent](ctx, s.client,
		formRequest(http.MethodPost, "/payment_intents/"+url.PathEscape(externalID)+"/confirm", url.Values{}, "Idempotency-Key", idempotencyKey))
	if err != nil {
		return nil, err
	}
	return intent.toResult(), nil
}

func (s *Stripe) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	intent, err := send[stripeIntent](ctx, s.client,
		request{method: http.MethodGet, path: "/payment_intents/" + url.PathEscape(externalID)})
	if err != nil {
		return nil, err
	}
	return intent.toResult(), nil
}

func (s *Stripe) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	form := url.Values{}
	form.Set("cancellation_reason", "requested_by_customer")
	intent, err := send[stripeIntent](ctx, s.client,
		formRequest(http.MethodPost, "/payment_intents/"+url.PathEscape(externalID)+"/cancel", form, "Idempotency-Key", idempotencyKey))
	if err != nil {
		return nil, err
	}
	return intent.toResult(), nil
}

func (s *Stripe) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.ExternalID)
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))

	refund, err := send[stripeRefund](ctx, s.client,
		formRequest(http.MethodPost, "/refunds", form, "Idempotency-Key", req.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	return &domain.RefundResult{
		ExternalID:    refund.ID,
		Status:        stripeRefundStatus(refund.Status),
		FailureReason: refund.FailureReason,
	}, nil
}

func (i *stripeIntent) toResult() *domain.ChargeResult {
	res := &domain.ChargeResult{
		ExternalID: i.ID,
		Status:     stripeIntentStatus(i.Status),
	}
	if i.NextAction != nil && i.NextAction.RedirectToURL != nil {
		res.ConfirmationURL = i.NextAction.RedirectToURL.URL
	}
	if i.LastPaymentError != nil {
		res.FailureReason = i.LastPaymentError.Message
	}
	if res.Status == domain.ProviderCanceled && i.CancellationReason != "" && res.FailureReason == "" {
		res.FailureReason = i.CancellationReason
	}
	return res
}

// stripeIntentStatus normalizes PaymentIntent statuses. An intent waiting for
// confirmation or a payment method is confirmed through CaptureCharge.
func stripeIntentStatus(status string) domain.ProviderStatus {
	switch status {
	case "succeeded":
		return domain.ProviderSucceeded
	case "requires_confirmation", "requires_payment_method", "requires_capture":
		return domain.ProviderRequiresCapture
	case "canceled":
		return domain.ProviderCanceled
	case "processing", "requires_action":
		return domain.ProviderPending
	default:
		return domain.ProviderPending
	}
}

func stripeRefundStatus(status string) domain.ProviderStatus {
	switch status {
	case "succeeded":
		return domain.ProviderSucceeded
	case "failed":
		return domain.ProviderFailed
	case "canceled":
		return domain.ProviderCanceled
	default:
		return domain.ProviderPending
	}
}
