package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
)

const SandboxName = "sandbox"

// Sandbox is an in-process gateway for development and tests. Charges succeed
// unless the amount's minor units end in 02 (decline) or 05 (timeout). Amounts
// ending in 07 stay pending until Settle is called, like a redirect flow.
type Sandbox struct {
	mu         sync.Mutex
	latency    time.Duration
	charges    map[string]*sandboxCharge
	chargeKeys map[string]string
	refunds    map[string]*domain.RefundResult
}

type sandboxCharge struct {
	result      domain.ChargeResult
	amountMinor int64
	refunded    int64
}

func NewSandbox(latency time.Duration) *Sandbox {
	return &Sandbox{
		latency:    latency,
		charges:    make(map[string]*sandboxCharge),
		chargeKeys: make(map[string]string),
		refunds:    make(map[string]*domain.RefundResult),
	}
}

func (s *Sandbox) Name() string {
	return SandboxName
}

func (s *Sandbox) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	if err := sleep(ctx, s.latency); err != nil {
		return &Error{Provider: SandboxName, Message: "request aborted", Err: err}
	}
	return nil
}

func sandboxError(status int, code, message string) *Error {
	return &Error{Provider: SandboxName, StatusCode: status, Code: code, Message: message}
}

func (s *Sandbox) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.chargeKeys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		res := s.charges[id].result
		return &res, nil
	}

	switch req.AmountMinor % 100 {
	case 5:
		return nil, sandboxError(http.StatusGatewayTimeout, "timeout", "simulated gateway timeout")
	}

	id := "sb_" + uuid.NewString()
	charge := &sandboxCharge{
		result:      domain.ChargeResult{ExternalID: id, Status: domain.ProviderSucceeded},
		amountMinor: req.AmountMinor,
	}
	switch req.AmountMinor % 100 {
	case 2:
		charge.result.Status = domain.ProviderFailed
		charge.result.FailureReason = "card_declined: simulated decline"
	case 7:
		charge.result.Status = domain.ProviderPending
		charge.result.ConfirmationURL = "https://sandbox.local/confirm/" + id
	}

	s.charges[id] = charge
	if req.IdempotencyKey != "" {
		s.chargeKeys[req.IdempotencyKey] = id
	}
	res := charge.result
	return &res, nil
}

func (s *Sandbox) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	charge, ok := s.charges[externalID]
	if !ok {
		return nil, sandboxError(http.StatusNotFound, "resource_missing", "no such charge")
	}
	if charge.result.Status == domain.ProviderRequiresCapture {
		charge.result.Status = domain.ProviderSucceeded
	}
	res := charge.result
	return &res, nil
}

func (s *Sandbox) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	charge, ok := s.charges[externalID]
	if !ok {
		return nil, sandboxError(http.StatusNotFound, "resource_missing", "no such charge")
	}
	res := charge.result
	return &res, nil
}

func (s *Sandbox) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	charge, ok := s.charges[externalID]
	if !ok {
		return nil, sandboxError(http.StatusNotFound, "resource_missing", "no such charge")
	}
	switch charge.result.Status {
	case domain.ProviderSucceeded:
		return nil, sandboxError(http.StatusBadRequest, "charge_already_succeeded", "charge already succeeded")
	case domain.ProviderPending, domain.ProviderRequiresCapture:
		charge.result.Status = domain.ProviderCanceled
	}
	res := charge.result
	return &res, nil
}

func (s *Sandbox) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := *res
		return &out, nil
	}

	charge, ok := s.charges[req.ExternalID]
	if !ok {
		return nil, sandboxError(http.StatusNotFound, "resource_missing", "no such charge")
	}
	if charge.result.Status != domain.ProviderSucceeded {
		return nil, sandboxError(http.StatusBadRequest, "charge_not_refundable", "charge has not succeeded")
	}
	if req.AmountMinor <= 0 || charge.refunded+req.AmountMinor > charge.amountMinor {
		return nil, sandboxError(http.StatusBadRequest, "amount_too_large", "refund exceeds charge amount")
	}

	charge.refunded += req.AmountMinor
	res := &domain.RefundResult{
		ExternalID: "sbr_" + uuid.NewString(),
		Status:     domain.ProviderSucceeded,
	}
	if req.IdempotencyKey != "" {
		s.refunds[req.IdempotencyKey] = res
	}
	out := *res
	return &out, nil
}

// Settle moves a pending charge to status, as the customer finishing a redirect would.
func (s *Sandbox) Settle(externalID string, status domain.ProviderStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	charge, ok := s.charges[externalID]
	if !ok || charge.result.Status != domain.ProviderPending {
		return false
	}
	charge.result.Status = status
	return true
}
