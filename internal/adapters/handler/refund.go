package handler

import (
	"net/http"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/service"
	"github.com/shopspring/decimal"
)

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty" swaggertype:"string" example:"600.00"`
	Reason *string          `json:"reason,omitempty" validate:"omitempty,max=1024" example:"requested_by_customer"`
}

// HandleRefund refunds a successful payment
// @Summary      Refund a payment
// @Description  Return money for a SUCCESS payment. Without an amount the remaining balance is refunded.
// @Description  A partial refund keeps the payment in SUCCESS; it becomes REFUNDED once fully refunded.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        paymentId        path      string         true   "Payment ID"
// @Param        Idempotency-Key  header    string         false  "Repeating a key returns the refund it created"
// @Param        request          body      RefundRequest  false  "Refund details"
// @Success      200              {object}  APIResponse    "Refund"
// @Failure      400              {object}  APIResponse    "Amount exceeds the refundable balance"
// @Failure      402              {object}  APIResponse    "Refund declined by the gateway"
// @Failure      404              {object}  APIResponse    "Payment not found"
// @Failure      409              {object}  APIResponse    "Payment not in refundable state"
// @Failure      503              {object}  APIResponse    "Gateway unavailable, the refund stays pending"
// @Router       /api/payments/{paymentId}/refund [post]
func (h *PaymentHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	paymentID, err := paymentIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req RefundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, r, err.Error())
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if len(idemKey) > 255 {
		respondValidationError(w, r, "Idempotency-Key must be at most 255 characters")
		return
	}

	refund, err := h.payments.RefundPayment(r.Context(), service.RefundCommand{
		PaymentID:      paymentID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToRefundResponse(refund))
}

// HandleListRefunds lists the refunds of a payment
// @Summary      List refunds
// @Tags         payments
// @Produce      json
// @Param        paymentId  path      string       true  "Payment ID"
// @Success      200        {object}  APIResponse  "Refunds, oldest first"
// @Failure      404        {object}  APIResponse  "Payment not found"
// @Router       /api/payments/{paymentId}/refunds [get]
func (h *PaymentHandler) HandleListRefunds(w http.ResponseWriter, r *http.Request) {
	paymentID, err := paymentIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if _, err := h.payments.GetPayment(r.Context(), paymentID); err != nil {
		respondWithError(w, r, err)
		return
	}

	refunds, err := h.payments.ListRefunds(r.Context(), paymentID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	out := make([]RefundResponse, 0, len(refunds))
	for _, refund := range refunds {
		out = append(out, ToRefundResponse(refund))
	}
	respondWithJSON(w, http.StatusOK, out)
}
