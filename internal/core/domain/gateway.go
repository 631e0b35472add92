package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderStatus is a gateway charge or refund status normalized across providers.
type ProviderStatus string

const (
	ProviderSucceeded       ProviderStatus = "succeeded"
	ProviderPending         ProviderStatus = "pending"
	ProviderRequiresCapture ProviderStatus = "requires_capture"
	ProviderFailed          ProviderStatus = "failed"
	ProviderCanceled        ProviderStatus = "canceled"
)

// ChargeRequest asks a gateway to create a charge. AmountMinor is in the currency's smallest unit.
type ChargeRequest struct {
	PaymentID      uuid.UUID
	Amount         decimal.Decimal
	AmountMinor    int64
	Currency       string
	Method         PaymentMethod
	Description    string
	ReturnURL      string
	CustomerID     string
	IdempotencyKey string
}

// ChargeResult is the provider's view of a charge after a call.
type ChargeResult struct {
	ExternalID      string
	Status          ProviderStatus
	ConfirmationURL string
	FailureReason   string
}

// RefundRequest asks a gateway to refund part or all of a charge.
type RefundRequest struct {
	ExternalID     string
	Amount         decimal.Decimal
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// RefundResult is the provider's view of a refund.
type RefundResult struct {
	ExternalID    string
	Status        ProviderStatus
	FailureReason string
}

// CardDetails carries the card fields checked before a card charge. No cryptographic validation is done.
type CardDetails struct {
	Number   string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpMonth int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear  int    `json:"exp_year" validate:"required,min=2000"`
	CVC      string `json:"cvc" validate:"required,numeric,min=3,max=4"`
	Holder   string `json:"holder,omitempty"`
}

// Expired reports whether the card's expiry month is before now.
func (c *CardDetails) Expired(now time.Time) bool {
	y, m, _ := now.Date()
	if c.ExpYear != y {
		return c.ExpYear < y
	}
	return c.ExpMonth < int(m)
}

// PaymentDetails are the method-specific inputs to ProcessPayment.
type PaymentDetails struct {
	Card *CardDetails `json:"card,omitempty"`
}
