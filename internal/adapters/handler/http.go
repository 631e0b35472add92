package handler

import (
	"context"
	"net/http"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/service"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

type PaymentService interface {
	CreatePayment(ctx context.Context, cmd service.CreatePaymentCommand) (*domain.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ProcessPayment(ctx context.Context, id uuid.UUID, details domain.PaymentDetails) (*domain.Payment, error)
	CancelPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	RefundPayment(ctx context.Context, cmd service.RefundCommand) (*domain.Refund, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error)
}

type CustomerService interface {
	CreateCustomer(ctx context.Context, cmd service.CreateCustomerCommand) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

type WebhookService interface {
	Handle(ctx context.Context, env domain.WebhookEnvelope) (domain.WebhookOutcome, error)
}

// ParserRegistry tells the webhook endpoint which header carries a provider's signature.
type ParserRegistry interface {
	WebhookParser(provider string) (ports.WebhookParser, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type PaymentHandler struct {
	payments  PaymentService
	customers CustomerService
	webhooks  WebhookService
	parsers   ParserRegistry
	health    HealthChecker
	validate  *validator.Validate
}

func NewPaymentHandler(
	payments PaymentService,
	customers CustomerService,
	webhooks WebhookService,
	parsers ParserRegistry,
	health HealthChecker,
) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		customers: customers,
		webhooks:  webhooks,
		parsers:   parsers,
		health:    health,
		validate:  validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/payments", h.HandleCreatePayment)
	mux.HandleFunc("GET /api/payments/{paymentId}", h.HandleGetPayment)
	mux.HandleFunc("POST /api/payments/{paymentId}/process", h.HandleProcessPayment)
	mux.HandleFunc("POST /api/payments/{paymentId}/cancel", h.HandleCancelPayment)
	mux.HandleFunc("POST /api/payments/{paymentId}/refund", h.HandleRefund)
	mux.HandleFunc("GET /api/payments/{paymentId}/refunds", h.HandleListRefunds)
	mux.HandleFunc("POST /api/customers", h.HandleCreateCustomer)
	mux.HandleFunc("GET /api/customers/{customerId}", h.HandleGetCustomer)
	mux.HandleFunc("GET /api/customers/{customerId}/payments", h.HandleGetPaymentsByCustomer)
	mux.HandleFunc("POST /api/webhooks/{provider}", h.HandleWebhook)
	mux.HandleFunc("GET /health", h.HandleHealth)
}
