package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

type CreateCustomerCommand struct {
	Email    string            `validate:"required,email"`
	Name     string            `validate:"required,max=255"`
	Phone    *string           `validate:"omitempty,max=32"`
	Metadata map[string]string
}

type CustomerService struct {
	repo     ports.CustomerRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewCustomerService(repo ports.CustomerRepository, logger *slog.Logger) *CustomerService {
	return &CustomerService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *CustomerService) CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (*domain.Customer, error) {
	cmd.Email = strings.TrimSpace(strings.ToLower(cmd.Email))
	if err := s.validate.Struct(cmd); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid customer: %v", err))
	}

	customer := &domain.Customer{
		ID:        uuid.New(),
		Email:     cmd.Email,
		Name:      cmd.Name,
		Phone:     cmd.Phone,
		Metadata:  cmd.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.SaveCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.logger.Info("customer created", "customer_id", customer.ID)
	return customer, nil
}

func (s *CustomerService) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return s.repo.LoadCustomer(ctx, id)
}
