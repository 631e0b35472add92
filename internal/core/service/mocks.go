package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
)

// MockGateway is a scriptable GatewayAdapter. Without Fn overrides every call succeeds.
type MockGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	ctxErrs  []error
	Provider string
	Delay    time.Duration

	CreateChargeFn  func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error)
	CaptureChargeFn func(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error)
	GetChargeFn     func(ctx context.Context, externalID string) (*domain.ChargeResult, error)
	CancelChargeFn  func(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error)
	RefundChargeFn  func(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error)
}

var _ ports.GatewayAdapter = (*MockGateway)(nil)

func (m *MockGateway) Name() string {
	if m.Provider == "" {
		return "mock"
	}
	return m.Provider
}

// call counts method and waits Delay. The context error seen after the wait is recorded.
func (m *MockGateway) call(ctx context.Context, method string) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
}

func (m *MockGateway) GetCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// ContextErrors returns the context error observed at the end of each call.
func (m *MockGateway) ContextErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.ctxErrs...)
}

func (m *MockGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	m.call(ctx, "CreateCharge")
	if m.CreateChargeFn != nil {
		return m.CreateChargeFn(ctx, req)
	}
	return &domain.ChargeResult{
		ExternalID: "ch_" + req.PaymentID.String(),
		Status:     domain.ProviderSucceeded,
	}, nil
}

func (m *MockGateway) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	m.call(ctx, "CaptureCharge")
	if m.CaptureChargeFn != nil {
		return m.CaptureChargeFn(ctx, externalID, idempotencyKey)
	}
	return &domain.ChargeResult{ExternalID: externalID, Status: domain.ProviderSucceeded}, nil
}

func (m *MockGateway) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	m.call(ctx, "GetCharge")
	if m.GetChargeFn != nil {
		return m.GetChargeFn(ctx, externalID)
	}
	return &domain.ChargeResult{ExternalID: externalID, Status: domain.ProviderSucceeded}, nil
}

func (m *MockGateway) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	m.call(ctx, "CancelCharge")
	if m.CancelChargeFn != nil {
		return m.CancelChargeFn(ctx, externalID, idempotencyKey)
	}
	return &domain.ChargeResult{ExternalID: externalID, Status: domain.ProviderCanceled}, nil
}

func (m *MockGateway) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	m.call(ctx, "RefundCharge")
	if m.RefundChargeFn != nil {
		return m.RefundChargeFn(ctx, req)
	}
	return &domain.RefundResult{
		ExternalID: "re_" + req.IdempotencyKey,
		Status:     domain.ProviderSucceeded,
	}, nil
}

// MockWebhookParser accepts signatures equal to Secret and parses with ParseFn.
type MockWebhookParser struct {
	Name    string
	Secret  string
	ParseFn func(payload []byte) (*domain.GatewayEvent, error)
}

func (p *MockWebhookParser) Provider() string        { return p.Name }
func (p *MockWebhookParser) SignatureHeader() string { return "X-Mock-Signature" }

func (p *MockWebhookParser) Verify(payload []byte, signature string) error {
	if signature != p.Secret {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (p *MockWebhookParser) Parse(payload []byte) (*domain.GatewayEvent, error) {
	return p.ParseFn(payload)
}

// MockRegistry serves a single adapter for every method.
type MockRegistry struct {
	Gateway ports.GatewayAdapter
	Parser  ports.WebhookParser
}

func (r *MockRegistry) Adapter(name string) (ports.GatewayAdapter, error) {
	if name != r.Gateway.Name() {
		return nil, domain.NewNotFoundError("gateway", name)
	}
	return r.Gateway, nil
}

func (r *MockRegistry) ForMethod(method domain.PaymentMethod) (ports.GatewayAdapter, error) {
	return r.Gateway, nil
}

func (r *MockRegistry) WebhookParser(provider string) (ports.WebhookParser, error) {
	if r.Parser == nil || r.Parser.Provider() != provider {
		return nil, domain.NewNotFoundError("webhook provider", provider)
	}
	return r.Parser, nil
}

// MockPublisher records published lifecycle events.
type MockPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
	Err    error
}

func (p *MockPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *MockPublisher) Types() []domain.LifecycleEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LifecycleEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
