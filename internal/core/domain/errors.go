package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeInvalidAmount          = "INVALID_AMOUNT"
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeGatewayRejected        = "GATEWAY_REJECTED"
	ErrCodeGatewayUnavailable     = "GATEWAY_UNAVAILABLE"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeProcessingInFlight     = "PROCESSING_IN_FLIGHT"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeDuplicateEvent         = "DUPLICATE_EVENT"
)

// Retryable is implemented by errors that know whether repeating the call may succeed.
type Retryable interface {
	IsRetryable() bool
}

// IsErrorCode reports whether err wraps a DomainError with the given code.
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

func NewInvalidTransitionError(from, to PaymentStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewNotFoundError(kind, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}

func NewPaymentNotFoundError(id string) *DomainError {
	return NewNotFoundError("payment", id)
}

func NewInvalidAmountError(amount decimal.Decimal) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount: %s", amount.String()),
	}
}

func NewRefundExceedsBalanceError(requested, refundable decimal.Decimal) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("refund amount %s exceeds refundable balance %s", requested.String(), refundable.String()),
	}
}

func NewValidationError(message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

func NewUnauthenticatedError(provider string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeUnauthenticated,
		Message: fmt.Sprintf("webhook signature verification failed for %s", provider),
		Err:     err,
	}
}

func NewGatewayRejectedError(reason string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayRejected,
		Message: reason,
		Err:     err,
	}
}

func NewGatewayUnavailableError(gateway string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayUnavailable,
		Message: fmt.Sprintf("gateway %s unavailable, payment state unchanged", gateway),
		Err:     err,
	}
}

func NewProcessingInFlightError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeProcessingInFlight,
		Message: fmt.Sprintf("payment %s is being processed", id),
	}
}

func NewConflictError(message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

func NewConcurrentModificationError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConcurrentModification,
		Message: fmt.Sprintf("payment %s was modified concurrently", id),
	}
}

func NewDuplicateEventError(provider, eventID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeDuplicateEvent,
		Message: fmt.Sprintf("webhook event %s/%s already recorded", provider, eventID),
	}
}

// IsRetryableError reports whether a gateway failure may succeed on retry.
// Timeouts and connection failures are retryable; errors that say otherwise are not.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}
