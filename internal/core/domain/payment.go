// Package domain defines the payment orchestration models and their state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusSuccess   PaymentStatus = "SUCCESS"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusRefunded  PaymentStatus = "REFUNDED"
)

// AllStatuses lists every payment status.
var AllStatuses = []PaymentStatus{StatusPending, StatusSuccess, StatusFailed, StatusCancelled, StatusRefunded}

// PaymentMethod is the instrument the customer pays with.
type PaymentMethod string

const (
	MethodCard          PaymentMethod = "card"
	MethodBankTransfer  PaymentMethod = "bank_transfer"
	MethodDigitalWallet PaymentMethod = "digital_wallet"
	MethodCrypto        PaymentMethod = "crypto"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodDigitalWallet, MethodCrypto:
		return true
	}
	return false
}

// Payment represents a payment transaction in the system
type Payment struct {
	ID         uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Method     PaymentMethod
	Status     PaymentStatus
	CustomerID *string
	Metadata   map[string]string

	Description     string
	ReturnURL       string
	PaymentURL      string
	ConfirmationURL *string

	Gateway          string
	GatewayPaymentID *string
	ErrorReason      *string

	RefundedAmount decimal.Decimal

	// ProcessingStartedAt marks a gateway charge call in flight.
	ProcessingStartedAt *time.Time
	// LastAttemptAt is when a charge was last sent to the gateway. It survives
	// an unresolved attempt so the reconciler can re-submit it.
	LastAttemptAt *time.Time
	Version       int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// CanTransitionTo validates whether a payment can transition from its current status to the target status.
//
// Valid transitions are:
//   - Pending → Success, Failed, Cancelled
//   - Success → Refunded
//
// Failed, Cancelled and Refunded are terminal. Any other transition returns an INVALID_TRANSITION error.
func (p *Payment) CanTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case StatusPending:
		if target == StatusSuccess || target == StatusFailed || target == StatusCancelled {
			return nil
		}
	case StatusSuccess:
		if target == StatusRefunded {
			return nil
		}
	}
	return NewInvalidTransitionError(p.Status, target)
}

// IsTerminal reports whether no further gateway work is expected for the payment.
// A SUCCESS payment is terminal until it is refunded.
func (p *Payment) IsTerminal() bool {
	return p.Status != StatusPending
}

// Attempted reports whether a charge may exist at the gateway.
func (p *Payment) Attempted() bool {
	return p.GatewayPaymentID != nil || p.LastAttemptAt != nil
}

// InFlight reports whether a gateway call started within staleAfter is still unresolved.
func (p *Payment) InFlight(now time.Time, staleAfter time.Duration) bool {
	if p.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*p.ProcessingStartedAt) < staleAfter
}

// RefundableBalance is the amount minus completed refunds and reserved pending ones.
func (p *Payment) RefundableBalance(pending decimal.Decimal) decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount).Sub(pending)
}

// FullyRefunded reports whether completed refunds cover the whole amount.
func (p *Payment) FullyRefunded() bool {
	return p.RefundedAmount.GreaterThanOrEqual(p.Amount)
}

// ChargeIdempotencyKey is the key sent with every charge call for this payment,
// so a retried create never charges twice at the provider.
func (p *Payment) ChargeIdempotencyKey() string {
	return "charge-" + p.ID.String()
}

// PaymentUpdate carries the fields to change on a stored payment. Nil fields are left as they are.
type PaymentUpdate struct {
	ExpectedVersion int64

	Status           *PaymentStatus
	GatewayPaymentID *string
	ConfirmationURL  *string
	ErrorReason      *string
	RefundedAmount   *decimal.Decimal
	ProcessedAt      *time.Time

	SetProcessingStartedAt   *time.Time
	ClearProcessingStartedAt bool
	SetLastAttemptAt         *time.Time
}

// Apply copies the update onto p and bumps its version.
func (u PaymentUpdate) Apply(p *Payment, now time.Time) {
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.GatewayPaymentID != nil {
		p.GatewayPaymentID = u.GatewayPaymentID
	}
	if u.ConfirmationURL != nil {
		p.ConfirmationURL = u.ConfirmationURL
	}
	if u.ErrorReason != nil {
		p.ErrorReason = u.ErrorReason
	}
	if u.RefundedAmount != nil {
		p.RefundedAmount = *u.RefundedAmount
	}
	if u.ProcessedAt != nil {
		p.ProcessedAt = u.ProcessedAt
	}
	if u.SetProcessingStartedAt != nil {
		p.ProcessingStartedAt = u.SetProcessingStartedAt
	}
	if u.ClearProcessingStartedAt {
		p.ProcessingStartedAt = nil
	}
	if u.SetLastAttemptAt != nil {
		p.LastAttemptAt = u.SetLastAttemptAt
	}
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
	p.Version++
}
