package handler

import (
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HandleGetPayment returns one payment
// @Summary      Get a payment
// @Tags         payments
// @Produce      json
// @Param        paymentId  path      string       true  "Payment ID"
// @Success      200        {object}  APIResponse  "Payment"
// @Failure      400        {object}  APIResponse  "Malformed payment ID"
// @Failure      404        {object}  APIResponse  "Payment not found"
// @Router       /api/payments/{paymentId} [get]
func (h *PaymentHandler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToPaymentResponse(payment))
}

// HandleGetPaymentsByCustomer lists a customer's payments
// @Summary      List customer payments
// @Description  Payments of a customer, newest first.
// @Tags         customers
// @Produce      json
// @Param        customerId  path      string       true   "Customer ID"
// @Param        limit       query     int          false  "Page size (max 100)"  default(20)
// @Param        offset      query     int          false  "Rows to skip"         default(0)
// @Success      200         {object}  APIResponse  "Payments"
// @Failure      400         {object}  APIResponse  "Invalid paging parameters"
// @Router       /api/customers/{customerId}/payments [get]
func (h *PaymentHandler) HandleGetPaymentsByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		respondValidationError(w, r, "customerId is required")
		return
	}

	limit, offset := defaultPageSize, 0
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		respondValidationError(w, r, "limit must be an integer")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", r.URL.Query(), &offset); err != nil {
		respondValidationError(w, r, "offset must be an integer")
		return
	}
	if limit < 1 || limit > maxPageSize || offset < 0 {
		respondValidationError(w, r, "limit must be between 1 and 100 and offset must not be negative")
		return
	}

	payments, err := h.payments.ListByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToPaymentResponses(payments))
}

// HandleHealth reports whether the store is reachable
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  APIResponse  "Healthy"
// @Failure      500  {object}  APIResponse  "Store unreachable"
// @Router       /health [get]
func (h *PaymentHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			respondWithError(w, r, err)
			return
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
