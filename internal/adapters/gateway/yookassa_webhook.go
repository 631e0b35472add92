package gateway

import (
	"encoding/json"
	"strings"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/shopspring/decimal"
)

const YooKassaSignatureHeader = "X-Webhook-Signature"

// YooKassaWebhook verifies hex HMAC-SHA256 signatures over the raw body.
type YooKassaWebhook struct {
	secret string
}

func NewYooKassaWebhook(secret string) *YooKassaWebhook {
	return &YooKassaWebhook{secret: secret}
}

func (w *YooKassaWebhook) Provider() string        { return YooKassaName }
func (w *YooKassaWebhook) SignatureHeader() string { return YooKassaSignatureHeader }

func (w *YooKassaWebhook) Verify(payload []byte, signature string) error {
	return verifyHex(w.secret, payload, signature)
}

type yooNotification struct {
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Object json.RawMessage `json:"object"`
}

// Parse maps a notification. YooKassa sends no event id, so one is derived
// from the event name, object id and object status.
func (w *YooKassaWebhook) Parse(payload []byte) (*domain.GatewayEvent, error) {
	var n yooNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.NewValidationError("malformed yookassa notification: " + err.Error())
	}
	if n.Event == "" {
		return nil, domain.NewValidationError("yookassa notification without event")
	}

	out := &domain.GatewayEvent{
		Provider: YooKassaName,
		RawType:  n.Event,
		Type:     domain.EventUnknown,
	}

	switch {
	case strings.HasPrefix(n.Event, "payment."):
		var p yooPayment
		if err := json.Unmarshal(n.Object, &p); err != nil {
			return nil, domain.NewValidationError("malformed yookassa payment: " + err.Error())
		}
		out.EventID = n.Event + ":" + p.ID + ":" + p.Status
		out.ExternalID = p.ID
		out.PaymentID = metadataPaymentID(p.Metadata)
		out.Amount = parseYooAmount(p.Amount)
		out.Currency = domain.NormalizeCurrency(p.Amount.Currency)
		switch n.Event {
		case "payment.succeeded":
			out.Type = domain.EventPaymentSucceeded
		case "payment.canceled":
			if yooPaymentStatus(p.Status, p.CancellationDetails) == domain.ProviderCanceled {
				out.Type = domain.EventPaymentCancelled
			} else {
				out.Type = domain.EventPaymentFailed
			}
			if p.CancellationDetails != nil {
				out.Reason = p.CancellationDetails.Reason
			}
		}

	case strings.HasPrefix(n.Event, "refund."):
		var r yooRefund
		if err := json.Unmarshal(n.Object, &r); err != nil {
			return nil, domain.NewValidationError("malformed yookassa refund: " + err.Error())
		}
		out.EventID = n.Event + ":" + r.ID + ":" + r.Status
		out.ExternalID = r.PaymentID
		out.RefundExternalID = r.ID
		out.Amount = parseYooAmount(r.Amount)
		out.Currency = domain.NormalizeCurrency(r.Amount.Currency)
		switch yooRefundStatus(r.Status) {
		case domain.ProviderSucceeded:
			out.Type = domain.EventRefundCompleted
		case domain.ProviderFailed:
			out.Type = domain.EventRefundFailed
			if r.CancellationDetails != nil {
				out.Reason = r.CancellationDetails.Reason
			}
		}

	default:
		out.EventID = n.Event
	}

	return out, nil
}

func parseYooAmount(a yooAmount) *decimal.Decimal {
	if a.Value == "" {
		return nil
	}
	amount, err := decimal.NewFromString(a.Value)
	if err != nil {
		return nil
	}
	return &amount
}
