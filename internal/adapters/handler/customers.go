package handler

import (
	"net/http"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/service"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
)

type CreateCustomerRequest struct {
	Email    string            `json:"email" validate:"required,email" example:"jane@example.com"`
	Name     string            `json:"name" validate:"required,max=255" example:"Jane Doe"`
	Phone    *string           `json:"phone,omitempty" validate:"omitempty,max=32" example:"+79990000000"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandleCreateCustomer registers a customer
// @Summary      Create a customer
// @Tags         customers
// @Accept       json
// @Produce      json
// @Param        request  body      CreateCustomerRequest  true  "Customer details"
// @Success      201      {object}  APIResponse            "Customer created"
// @Failure      400      {object}  APIResponse            "Invalid request"
// @Failure      409      {object}  APIResponse            "Email already registered"
// @Router       /api/customers [post]
func (h *PaymentHandler) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, r, err.Error())
		return
	}

	customer, err := h.customers.CreateCustomer(r.Context(), service.CreateCustomerCommand{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ToCustomerResponse(customer))
}

// HandleGetCustomer returns one customer
// @Summary      Get a customer
// @Tags         customers
// @Produce      json
// @Param        customerId  path      string       true  "Customer ID"
// @Success      200         {object}  APIResponse  "Customer"
// @Failure      404         {object}  APIResponse  "Customer not found"
// @Router       /api/customers/{customerId} [get]
func (h *PaymentHandler) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "customerId", r.PathValue("customerId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		respondWithError(w, r, domain.NewValidationError("customerId must be a UUID"))
		return
	}

	customer, err := h.customers.GetCustomer(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ToCustomerResponse(customer))
}
