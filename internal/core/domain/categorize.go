package domain

import (
	"context"
	"errors"
)

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryPermanent      ErrorCategory = "PERMANENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case ErrCodeInvalidTransition, ErrCodeInvalidAmount, ErrCodeConflict:
			return CategoryBusinessRule
		case ErrCodeNotFound, ErrCodeValidation, ErrCodeUnauthenticated:
			return CategoryClientError
		case ErrCodeGatewayRejected:
			return CategoryPermanent
		case ErrCodeGatewayUnavailable, ErrCodeProcessingInFlight, ErrCodeConcurrentModification, ErrCodeDuplicateEvent:
			return CategoryTransient
		}
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		if retryable.IsRetryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	return CategoryInfrastructure
}

// IsTransient returns true if the error category suggests retry
func IsTransient(err error) bool {
	category := CategorizeError(err)
	return category == CategoryTransient || category == CategoryInfrastructure
}
