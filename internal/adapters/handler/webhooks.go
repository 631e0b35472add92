package handler

import (
	"io"
	"net/http"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
)

type WebhookResponse struct {
	Outcome string `json:"outcome" example:"applied"`
}

// HandleWebhook receives a gateway notification
// @Summary      Receive a gateway webhook
// @Description  Verifies the provider signature, records the event once and applies it to the payment.
// @Description  Redelivered events are acknowledged with outcome "duplicate".
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        provider  path      string       true  "Gateway name"
// @Success      200       {object}  APIResponse  "Event handled"
// @Failure      400       {object}  APIResponse  "Malformed payload"
// @Failure      401       {object}  APIResponse  "Signature verification failed"
// @Failure      404       {object}  APIResponse  "Unknown provider or payment"
// @Failure      409       {object}  APIResponse  "Event conflicts with the payment state"
// @Router       /api/webhooks/{provider} [post]
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondValidationError(w, r, "unable to read webhook body")
		return
	}

	var signature string
	if h.parsers != nil {
		if parser, err := h.parsers.WebhookParser(provider); err == nil {
			signature = r.Header.Get(parser.SignatureHeader())
		}
	}

	outcome, err := h.webhooks.Handle(r.Context(), domain.WebhookEnvelope{
		Provider:  provider,
		Signature: signature,
		Payload:   payload,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{Outcome: string(outcome)})
}
