package gateway

import (
	"fmt"
	"net/http"
)

// Error is a failed call to a provider. StatusCode is zero when no HTTP response arrived.
type Error struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s error: %s (status: %d): %v", e.Provider, e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s error: %s (status: %d)", e.Provider, e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the provider may accept the same request later.
// Transport failures, rate limits, idempotency races and 5xx are retryable.
func (e *Error) IsRetryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusConflict:
		return true
	}
	return false
}

// Reason is the text recorded on a payment the provider declined.
func (e *Error) Reason() string {
	if e.Code != "" && e.Message != "" {
		return e.Code + ": " + e.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
