package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// Refund is a return of funds against a successful payment.
type Refund struct {
	ID              uuid.UUID
	PaymentID       uuid.UUID
	Amount          decimal.Decimal
	Reason          *string
	Status          RefundStatus
	IdempotencyKey  string
	GatewayRefundID *string
	ErrorReason     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Complete marks the refund as settled by the gateway.
func (r *Refund) Complete(gatewayRefundID string, now time.Time) {
	r.Status = RefundCompleted
	if gatewayRefundID != "" {
		r.GatewayRefundID = &gatewayRefundID
	}
	r.ErrorReason = nil
	r.UpdatedAt = now
}

// Fail marks the refund as definitively rejected, releasing its reserved balance.
func (r *Refund) Fail(reason string, now time.Time) {
	r.Status = RefundFailed
	r.ErrorReason = &reason
	r.UpdatedAt = now
}

// PendingTotal sums the amounts of refunds still awaiting a gateway outcome.
func PendingTotal(refunds []*Refund) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refunds {
		if r.Status == RefundPending {
			total = total.Add(r.Amount)
		}
	}
	return total
}
