package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType is a provider notification normalized to a lifecycle action.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentCancelled EventType = "payment_cancelled"
	EventRefundCompleted  EventType = "refund_completed"
	EventRefundFailed     EventType = "refund_failed"
	EventUnknown          EventType = "unknown"
)

// WebhookEnvelope is an inbound notification before verification.
type WebhookEnvelope struct {
	Provider  string
	Signature string
	Payload   []byte
}

// GatewayEvent is a verified notification parsed into provider-neutral terms.
type GatewayEvent struct {
	Provider         string
	EventID          string
	Type             EventType
	RawType          string
	PaymentID        *uuid.UUID
	ExternalID       string
	RefundExternalID string
	Amount           *decimal.Decimal
	Currency         string
	Reason           string
}

// WebhookEvent is the stored record of a received notification.
type WebhookEvent struct {
	ID              uuid.UUID
	Provider        string
	ProviderEventID string
	EventType       string
	PaymentID       *uuid.UUID
	Payload         json.RawMessage
	Processed       bool
	CreatedAt       time.Time
}

// WebhookOutcome describes what handling a webhook did.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)
