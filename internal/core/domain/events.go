package domain

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleEventType names a published payment or refund transition.
type LifecycleEventType string

const (
	LifecyclePaymentCreated   LifecycleEventType = "payment.created"
	LifecyclePaymentSucceeded LifecycleEventType = "payment.succeeded"
	LifecyclePaymentFailed    LifecycleEventType = "payment.failed"
	LifecyclePaymentCancelled LifecycleEventType = "payment.cancelled"
	LifecyclePaymentRefunded  LifecycleEventType = "payment.refunded"
	LifecycleRefundCompleted  LifecycleEventType = "refund.completed"
	LifecycleRefundFailed     LifecycleEventType = "refund.failed"
)

// LifecycleEvent is emitted after a transition has been persisted.
type LifecycleEvent struct {
	EventID    uuid.UUID          `json:"event_id"`
	Type       LifecycleEventType `json:"event_type"`
	PaymentID  uuid.UUID          `json:"payment_id"`
	RefundID   *uuid.UUID         `json:"refund_id,omitempty"`
	Status     PaymentStatus      `json:"status"`
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency"`
	Gateway    string             `json:"gateway,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewPaymentEvent builds a lifecycle event from the payment's current state.
func NewPaymentEvent(t LifecycleEventType, p *Payment, now time.Time) LifecycleEvent {
	ev := LifecycleEvent{
		EventID:    uuid.New(),
		Type:       t,
		PaymentID:  p.ID,
		Status:     p.Status,
		Amount:     FormatAmount(p.Amount, p.Currency),
		Currency:   p.Currency,
		Gateway:    p.Gateway,
		OccurredAt: now,
	}
	if p.ErrorReason != nil {
		ev.Reason = *p.ErrorReason
	}
	return ev
}

// NewRefundEvent builds a lifecycle event for a refund of p.
func NewRefundEvent(t LifecycleEventType, p *Payment, r *Refund, now time.Time) LifecycleEvent {
	ev := NewPaymentEvent(t, p, now)
	id := r.ID
	ev.RefundID = &id
	ev.Amount = FormatAmount(r.Amount, p.Currency)
	ev.Reason = ""
	if r.ErrorReason != nil {
		ev.Reason = *r.ErrorReason
	}
	return ev
}
