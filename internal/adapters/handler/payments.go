package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/service"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type CreatePaymentRequest struct {
	Amount      *decimal.Decimal  `json:"amount" validate:"required" swaggertype:"string" example:"1000.00"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,len=3" example:"RUB"`
	Method      string            `json:"method,omitempty" validate:"omitempty,oneof=card bank_transfer digital_wallet crypto" example:"card"`
	CustomerID  *string           `json:"customer_id,omitempty" example:"cust-67890"`
	Description string            `json:"description,omitempty" validate:"max=1024" example:"Order #1042"`
	ReturnURL   string            `json:"return_url,omitempty" example:"https://shop.example.com/return"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ProcessPaymentRequest struct {
	Card *domain.CardDetails `json:"card,omitempty"`
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("invalid JSON body: " + err.Error())
	}
	return nil
}

func paymentIDParam(r *http.Request) (uuid.UUID, error) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "paymentId", r.PathValue("paymentId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return uuid.Nil, domain.NewValidationError("paymentId must be a UUID")
	}
	return id, nil
}

// HandleCreatePayment creates a payment
// @Summary      Create a payment
// @Description  Register a new PENDING payment. Currency defaults to RUB and method to card.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request  body      CreatePaymentRequest  true  "Payment details"
// @Success      201      {object}  APIResponse           "Payment created"
// @Failure      400      {object}  APIResponse           "Invalid amount or request"
// @Failure      500      {object}  APIResponse           "Internal server error"
// @Router       /api/payments [post]
func (h *PaymentHandler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, r, err.Error())
		return
	}

	method := domain.PaymentMethod(req.Method)
	if method == "" {
		method = domain.MethodCard
	}

	payment, err := h.payments.CreatePayment(r.Context(), service.CreatePaymentCommand{
		Amount:      *req.Amount,
		Currency:    req.Currency,
		Method:      method,
		CustomerID:  req.CustomerID,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ToPaymentResponse(payment))
}

// HandleProcessPayment charges a payment through its gateway
// @Summary      Process a payment
// @Description  Charge a PENDING payment. Concurrent calls for the same payment share one gateway call.
// @Description  A payment awaiting customer confirmation stays PENDING and carries a confirmation_url.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        paymentId  path      string                 true   "Payment ID"
// @Param        request    body      ProcessPaymentRequest  false  "Card details"
// @Success      200        {object}  APIResponse            "Payment after the gateway call"
// @Failure      402        {object}  APIResponse            "Declined by the gateway"
// @Failure      404        {object}  APIResponse            "Payment not found"
// @Failure      409        {object}  APIResponse            "Payment is not PENDING or is being processed"
// @Failure      503        {object}  APIResponse            "Gateway unavailable, retry later"
// @Router       /api/payments/{paymentId}/process [post]
func (h *PaymentHandler) HandleProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req ProcessPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	payment, err := h.payments.ProcessPayment(r.Context(), id, domain.PaymentDetails{Card: req.Card})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToPaymentResponse(payment))
}

// HandleCancelPayment cancels a PENDING payment
// @Summary      Cancel a payment
// @Tags         payments
// @Produce      json
// @Param        paymentId  path      string       true  "Payment ID"
// @Success      200        {object}  APIResponse  "Payment cancelled"
// @Failure      404        {object}  APIResponse  "Payment not found"
// @Failure      409        {object}  APIResponse  "Payment is not PENDING"
// @Failure      503        {object}  APIResponse  "Gateway unavailable, retry later"
// @Router       /api/payments/{paymentId}/cancel [post]
func (h *PaymentHandler) HandleCancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	payment, err := h.payments.CancelPayment(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToPaymentResponse(payment))
}
