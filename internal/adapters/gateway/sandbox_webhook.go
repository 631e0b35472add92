package gateway

import (
	"encoding/json"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SandboxSignatureHeader = "X-Sandbox-Signature"

// SandboxNotification is the body the sandbox posts to the webhook endpoint.
type SandboxNotification struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	PaymentID  string           `json:"payment_id,omitempty"`
	ExternalID string           `json:"external_id,omitempty"`
	RefundID   string           `json:"refund_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

var sandboxEventTypes = map[string]domain.EventType{
	"payment.succeeded": domain.EventPaymentSucceeded,
	"payment.failed":    domain.EventPaymentFailed,
	"payment.canceled":  domain.EventPaymentCancelled,
	"refund.succeeded":  domain.EventRefundCompleted,
	"refund.failed":     domain.EventRefundFailed,
}

type SandboxWebhook struct {
	secret string
}

func NewSandboxWebhook(secret string) *SandboxWebhook {
	return &SandboxWebhook{secret: secret}
}

func (w *SandboxWebhook) Provider() string        { return SandboxName }
func (w *SandboxWebhook) SignatureHeader() string { return SandboxSignatureHeader }

func (w *SandboxWebhook) Verify(payload []byte, signature string) error {
	return verifyHex(w.secret, payload, signature)
}

func (w *SandboxWebhook) Parse(payload []byte) (*domain.GatewayEvent, error) {
	var n SandboxNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.NewValidationError("malformed sandbox notification: " + err.Error())
	}
	if n.ID == "" {
		return nil, domain.NewValidationError("sandbox notification without id")
	}

	out := &domain.GatewayEvent{
		Provider:         SandboxName,
		EventID:          n.ID,
		RawType:          n.Type,
		Type:             domain.EventUnknown,
		ExternalID:       n.ExternalID,
		RefundExternalID: n.RefundID,
		Amount:           n.Amount,
		Currency:         domain.NormalizeCurrency(n.Currency),
		Reason:           n.Reason,
	}
	if t, ok := sandboxEventTypes[n.Type]; ok {
		out.Type = t
	}
	if n.PaymentID != "" {
		id, err := uuid.Parse(n.PaymentID)
		if err != nil {
			return nil, domain.NewValidationError("invalid payment_id in sandbox notification")
		}
		out.PaymentID = &id
	}
	return out, nil
}
