// Package memory is an in-process Store used for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/google/uuid"
)

// Store keeps all records in maps guarded by one mutex. Transactions hold the
// mutex for their whole duration and roll back by restoring a snapshot.
type Store struct {
	mu sync.Mutex
	st *state
}

var (
	_ ports.Store = (*Store)(nil)
	_ ports.Store = (*txStore)(nil)
)

func NewStore() *Store {
	return &Store{st: newState()}
}

type state struct {
	payments  map[uuid.UUID]*domain.Payment
	refunds   map[uuid.UUID]*domain.Refund
	events    map[string]*domain.WebhookEvent
	customers map[uuid.UUID]*domain.Customer
}

func newState() *state {
	return &state{
		payments:  make(map[uuid.UUID]*domain.Payment),
		refunds:   make(map[uuid.UUID]*domain.Refund),
		events:    make(map[string]*domain.WebhookEvent),
		customers: make(map[uuid.UUID]*domain.Customer),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.payments {
		c.payments[k] = copyPayment(v)
	}
	for k, v := range s.refunds {
		c.refunds[k] = copyRefund(v)
	}
	for k, v := range s.events {
		e := *v
		c.events[k] = &e
	}
	for k, v := range s.customers {
		cu := *v
		c.customers[k] = &cu
	}
	return c
}

// WithTx runs fn against the store while holding the lock; an error restores the previous state.
func (s *Store) WithTx(ctx context.Context, fn func(ports.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txStore{state: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) SavePayment(ctx context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SavePayment(ctx, p)
}

func (s *Store) LoadPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.LoadPayment(ctx, id)
}

func (s *Store) LoadPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.LoadPaymentForUpdate(ctx, id)
}

func (s *Store) UpdatePayment(ctx context.Context, id uuid.UUID, update domain.PaymentUpdate) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdatePayment(ctx, id, update)
}

func (s *Store) FindByGatewayRef(ctx context.Context, gateway, externalID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindByGatewayRef(ctx, gateway, externalID)
}

func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Store) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindStalePending(ctx, olderThan, limit)
}

func (s *Store) SaveRefund(ctx context.Context, r *domain.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SaveRefund(ctx, r)
}

func (s *Store) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateRefund(ctx, r)
}

func (s *Store) FindRefundByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindRefundByIdempotencyKey(ctx, key)
}

func (s *Store) FindRefundByGatewayRef(ctx context.Context, gatewayRefundID string) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindRefundByGatewayRef(ctx, gatewayRefundID)
}

func (s *Store) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListRefunds(ctx, paymentID)
}

func (s *Store) FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindStalePendingRefunds(ctx, olderThan, limit)
}

func (s *Store) RecordWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RecordWebhookEvent(ctx, e)
}

func (s *Store) IsWebhookProcessed(ctx context.Context, provider, providerEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.IsWebhookProcessed(ctx, provider, providerEventID)
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SaveCustomer(ctx, c)
}

func (s *Store) LoadCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.LoadCustomer(ctx, id)
}

// txStore is the view handed to WithTx callbacks; the caller already holds the lock.
type txStore struct {
	*state
}

func (t *txStore) WithTx(ctx context.Context, fn func(ports.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (s *state) SavePayment(ctx context.Context, p *domain.Payment) error {
	if _, ok := s.payments[p.ID]; ok {
		return domain.NewConflictError("payment " + p.ID.String() + " already exists")
	}
	s.payments[p.ID] = copyPayment(p)
	return nil
}

func (s *state) LoadPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.NewPaymentNotFoundError(id.String())
	}
	return copyPayment(p), nil
}

func (s *state) LoadPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.LoadPayment(ctx, id)
}

func (s *state) UpdatePayment(ctx context.Context, id uuid.UUID, update domain.PaymentUpdate) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.NewPaymentNotFoundError(id.String())
	}
	if p.Version != update.ExpectedVersion {
		return nil, domain.NewConcurrentModificationError(id.String())
	}
	update.Apply(p, time.Now().UTC())
	return copyPayment(p), nil
}

func (s *state) FindByGatewayRef(ctx context.Context, gateway, externalID string) (*domain.Payment, error) {
	for _, p := range s.payments {
		if p.Gateway == gateway && p.GatewayPaymentID != nil && *p.GatewayPaymentID == externalID {
			return copyPayment(p), nil
		}
	}
	return nil, domain.NewNotFoundError("payment with gateway reference", gateway+"/"+externalID)
}

func (s *state) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error) {
	var out []*domain.Payment
	for _, p := range s.payments {
		if p.CustomerID != nil && *p.CustomerID == customerID {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *state) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Payment
	for _, p := range s.payments {
		if p.Status == domain.StatusPending && p.UpdatedAt.Before(cutoff) {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return page(out, limit, 0), nil
}

func (s *state) SaveRefund(ctx context.Context, r *domain.Refund) error {
	for _, existing := range s.refunds {
		if existing.IdempotencyKey == r.IdempotencyKey {
			return domain.NewConflictError("refund idempotency key " + r.IdempotencyKey + " already used")
		}
	}
	s.refunds[r.ID] = copyRefund(r)
	return nil
}

func (s *state) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	if _, ok := s.refunds[r.ID]; !ok {
		return domain.NewNotFoundError("refund", r.ID.String())
	}
	s.refunds[r.ID] = copyRefund(r)
	return nil
}

func (s *state) FindRefundByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error) {
	for _, r := range s.refunds {
		if r.IdempotencyKey == key {
			return copyRefund(r), nil
		}
	}
	return nil, nil
}

func (s *state) FindRefundByGatewayRef(ctx context.Context, gatewayRefundID string) (*domain.Refund, error) {
	for _, r := range s.refunds {
		if r.GatewayRefundID != nil && *r.GatewayRefundID == gatewayRefundID {
			return copyRefund(r), nil
		}
	}
	return nil, nil
}

func (s *state) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error) {
	var out []*domain.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, copyRefund(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *state) FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error) {
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Refund
	for _, r := range s.refunds {
		if r.Status == domain.RefundPending && r.UpdatedAt.Before(cutoff) {
			out = append(out, copyRefund(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func eventKey(provider, id string) string {
	return provider + "/" + id
}

func (s *state) RecordWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	key := eventKey(e.Provider, e.ProviderEventID)
	if existing, ok := s.events[key]; ok {
		if existing.Processed {
			return domain.NewDuplicateEventError(e.Provider, e.ProviderEventID)
		}
		existing.Processed = e.Processed
		existing.PaymentID = e.PaymentID
		return nil
	}
	cp := *e
	s.events[key] = &cp
	return nil
}

func (s *state) IsWebhookProcessed(ctx context.Context, provider, providerEventID string) (bool, error) {
	e, ok := s.events[eventKey(provider, providerEventID)]
	return ok && e.Processed, nil
}

func (s *state) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	for _, existing := range s.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return domain.NewConflictError("customer with email " + c.Email + " already exists")
		}
	}
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

func (s *state) LoadCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, domain.NewNotFoundError("customer", id.String())
	}
	cp := *c
	return &cp, nil
}

func page(in []*domain.Payment, limit, offset int) []*domain.Payment {
	if offset >= len(in) {
		return []*domain.Payment{}
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func copyPayment(p *domain.Payment) *domain.Payment {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func copyRefund(r *domain.Refund) *domain.Refund {
	cp := *r
	return &cp
}
