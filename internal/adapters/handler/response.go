package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PaymentResponse struct {
	ID               uuid.UUID         `json:"id"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Method           string            `json:"method"`
	Status           string            `json:"status"`
	RefundedAmount   decimal.Decimal   `json:"refunded_amount"`
	CustomerID       *string           `json:"customer_id,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ReturnURL        string            `json:"return_url,omitempty"`
	PaymentURL       string            `json:"payment_url,omitempty"`
	ConfirmationURL  *string           `json:"confirmation_url,omitempty"`
	Gateway          string            `json:"gateway"`
	GatewayPaymentID *string           `json:"gateway_payment_id,omitempty"`
	ErrorReason      *string           `json:"error_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
}

type RefundResponse struct {
	ID              uuid.UUID       `json:"id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Reason          *string         `json:"reason,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key"`
	GatewayRefundID *string         `json:"gateway_refund_id,omitempty"`
	ErrorReason     *string         `json:"error_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type CustomerResponse struct {
	ID        uuid.UUID         `json:"id"`
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Phone     *string           `json:"phone,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func ToPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           string(p.Method),
		Status:           string(p.Status),
		RefundedAmount:   p.RefundedAmount,
		CustomerID:       p.CustomerID,
		Description:      p.Description,
		Metadata:         p.Metadata,
		ReturnURL:        p.ReturnURL,
		PaymentURL:       p.PaymentURL,
		ConfirmationURL:  p.ConfirmationURL,
		Gateway:          p.Gateway,
		GatewayPaymentID: p.GatewayPaymentID,
		ErrorReason:      p.ErrorReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		ProcessedAt:      p.ProcessedAt,
	}
}

func ToPaymentResponses(payments []*domain.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, ToPaymentResponse(p))
	}
	return out
}

func ToRefundResponse(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		Status:          string(r.Status),
		Reason:          r.Reason,
		IdempotencyKey:  r.IdempotencyKey,
		GatewayRefundID: r.GatewayRefundID,
		ErrorReason:     r.ErrorReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func ToCustomerResponse(c *domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Phone:     c.Phone,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
	}
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
	}

	if response.Success {
		response.Data = data
	} else {
		if apiErr, ok := data.(*APIError); ok {
			response.Error = apiErr
		}
	}

	_ = json.NewEncoder(w).Encode(response)
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeInvalidAmount, domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrCodeGatewayRejected:
		return http.StatusPaymentRequired
	case domain.ErrCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrCodeInvalidTransition,
		domain.ErrCodeProcessingInFlight,
		domain.ErrCodeConflict,
		domain.ErrCodeConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"category", domain.CategorizeError(err),
		)
		respondWithJSON(w, http.StatusInternalServerError, &APIError{
			Code:    "INTERNAL_ERROR",
			Message: "internal server error",
		})
		return
	}

	status := StatusFor(domainErr.Code)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", domainErr.Code,
			"error", err,
		)
	}

	respondWithJSON(w, status, &APIError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
	})
}

func respondValidationError(w http.ResponseWriter, r *http.Request, message string) {
	respondWithError(w, r, domain.NewValidationError(message))
}
