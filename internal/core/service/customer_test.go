package service

import (
	"context"
	"testing"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/memory"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerService(t *testing.T) {
	ctx := context.Background()
	svc := NewCustomerService(memory.NewStore(), testLogger())

	created, err := svc.CreateCustomer(ctx, CreateCustomerCommand{Email: " Anna@Example.com ", Name: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", created.Email)

	got, err := svc.GetCustomer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.CreateCustomer(ctx, CreateCustomerCommand{Email: "anna@example.com", Name: "Anna again"})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConflict))

	_, err = svc.CreateCustomer(ctx, CreateCustomerCommand{Email: "not-an-email", Name: "Bob"})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))

	_, err = svc.GetCustomer(ctx, uuid.New())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
}
