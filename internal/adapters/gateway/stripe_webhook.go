package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	stripeTolerance       = 5 * time.Minute
)

// StripeWebhook verifies Stripe-Signature headers and parses event objects.
type StripeWebhook struct {
	secret string
	now    func() time.Time
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret, now: time.Now}
}

func (w *StripeWebhook) Provider() string        { return StripeName }
func (w *StripeWebhook) SignatureHeader() string { return StripeSignatureHeader }

// Verify checks a "t=<unix>,v1=<hex>" header against HMAC-SHA256("<t>.<payload>").
// Any of several v1 entries may match; timestamps outside the tolerance are rejected.
func (w *StripeWebhook) Verify(payload []byte, signature string) error {
	if w.secret == "" {
		return ErrNoWebhookSecret
	}
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := w.now().Sub(time.Unix(unix, 0))
	if age > stripeTolerance || age < -stripeTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, c := range candidates {
		got, err := hex.DecodeString(c)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignStripe builds a Stripe-Signature header value for payload at t.
func SignStripe(secret string, payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	signed := append([]byte(ts+"."), payload...)
	return "t=" + ts + ",v1=" + Sign(secret, signed)
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (w *StripeWebhook) Parse(payload []byte) (*domain.GatewayEvent, error) {
	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, domain.NewValidationError("malformed stripe event: " + err.Error())
	}
	if evt.ID == "" {
		return nil, domain.NewValidationError("stripe event without id")
	}

	out := &domain.GatewayEvent{
		Provider: StripeName,
		EventID:  evt.ID,
		RawType:  evt.Type,
		Type:     domain.EventUnknown,
	}

	switch {
	case strings.HasPrefix(evt.Type, "payment_intent."):
		var intent stripeIntent
		if err := json.Unmarshal(evt.Data.Object, &intent); err != nil {
			return nil, domain.NewValidationError("malformed payment_intent object: " + err.Error())
		}
		out.ExternalID = intent.ID
		out.PaymentID = metadataPaymentID(intent.Metadata)
		out.Amount = minorAmount(intent.Amount, intent.Currency)
		out.Currency = domain.NormalizeCurrency(intent.Currency)
		switch evt.Type {
		case "payment_intent.succeeded":
			out.Type = domain.EventPaymentSucceeded
		case "payment_intent.payment_failed":
			out.Type = domain.EventPaymentFailed
			if intent.LastPaymentError != nil {
				out.Reason = intent.LastPaymentError.Message
			}
		case "payment_intent.canceled":
			out.Type = domain.EventPaymentCancelled
			out.Reason = intent.CancellationReason
		}

	case strings.HasPrefix(evt.Type, "refund.") || evt.Type == "charge.refund.updated":
		var refund stripeRefund
		if err := json.Unmarshal(evt.Data.Object, &refund); err != nil {
			return nil, domain.NewValidationError("malformed refund object: " + err.Error())
		}
		out.ExternalID = refund.PaymentIntent
		out.RefundExternalID = refund.ID
		out.PaymentID = metadataPaymentID(refund.Metadata)
		out.Amount = minorAmount(refund.Amount, refund.Currency)
		out.Currency = domain.NormalizeCurrency(refund.Currency)
		switch stripeRefundStatus(refund.Status) {
		case domain.ProviderSucceeded:
			out.Type = domain.EventRefundCompleted
		case domain.ProviderFailed, domain.ProviderCanceled:
			out.Type = domain.EventRefundFailed
			out.Reason = refund.FailureReason
		}
	}

	return out, nil
}

func metadataPaymentID(metadata map[string]string) *uuid.UUID {
	raw, ok := metadata["payment_id"]
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func minorAmount(minor int64, currency string) *decimal.Decimal {
	if currency == "" || minor <= 0 {
		return nil
	}
	code := domain.NormalizeCurrency(currency)
	amount := domain.FromMinorUnits(minor, code)
	return &amount
}
