// Package storetest holds the behavior every Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// StoreSuite runs against the Store returned by NewStore, which is called before every test.
type StoreSuite struct {
	suite.Suite
	NewStore func() ports.Store

	store ports.Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *StoreSuite) newPayment(customerID string) *domain.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &domain.Payment{
		ID:             uuid.New(),
		Amount:         decimal.RequireFromString("1000.50"),
		Currency:       "RUB",
		Method:         domain.MethodCard,
		Status:         domain.StatusPending,
		Metadata:       map[string]string{"order_id": "ord-1"},
		Description:    "Order ord-1",
		ReturnURL:      "https://shop.example/return",
		PaymentURL:     "https://pay.example/p",
		Gateway:        "sandbox",
		RefundedAmount: decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if customerID != "" {
		p.CustomerID = &customerID
	}
	s.Require().NoError(s.store.SavePayment(s.ctx, p))
	return p
}

func (s *StoreSuite) newRefund(paymentID uuid.UUID, key string, amount string) *domain.Refund {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &domain.Refund{
		ID:             uuid.New(),
		PaymentID:      paymentID,
		Amount:         decimal.RequireFromString(amount),
		Status:         domain.RefundPending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(s.store.SaveRefund(s.ctx, r))
	return r
}

func (s *StoreSuite) TestPaymentRoundTrip() {
	p := s.newPayment("cust-1")

	got, err := s.store.LoadPayment(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.True(p.Amount.Equal(got.Amount), "amount %s != %s", p.Amount, got.Amount)
	s.True(got.RefundedAmount.IsZero())
	s.Equal("RUB", got.Currency)
	s.Equal(domain.MethodCard, got.Method)
	s.Equal(domain.StatusPending, got.Status)
	s.Equal(p.Metadata, got.Metadata)
	s.Require().NotNil(got.CustomerID)
	s.Equal("cust-1", *got.CustomerID)
	s.Nil(got.GatewayPaymentID)
	s.Nil(got.ProcessingStartedAt)
	s.Equal(int64(1), got.Version)
	s.WithinDuration(p.CreatedAt, got.CreatedAt, time.Millisecond)

	locked, err := s.store.LoadPaymentForUpdate(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, locked.ID)
}

func (s *StoreSuite) TestSavePaymentTwiceConflicts() {
	p := s.newPayment("")
	err := s.store.SavePayment(s.ctx, p)
	s.True(domain.IsErrorCode(err, domain.ErrCodeConflict), "got %v", err)
}

func (s *StoreSuite) TestLoadMissingPayment() {
	_, err := s.store.LoadPayment(s.ctx, uuid.New())
	s.True(domain.IsErrorCode(err, domain.ErrCodeNotFound), "got %v", err)
}

func (s *StoreSuite) TestUpdatePaymentChecksVersion() {
	p := s.newPayment("")
	started := time.Now().UTC().Truncate(time.Microsecond)

	claimed, err := s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{
		ExpectedVersion:        p.Version,
		SetProcessingStartedAt: &started,
		SetLastAttemptAt:       &started,
	})
	s.Require().NoError(err)
	s.Equal(p.Version+1, claimed.Version)
	s.Require().NotNil(claimed.ProcessingStartedAt)
	s.Require().NotNil(claimed.LastAttemptAt)
	s.True(claimed.Attempted())
	s.Equal(domain.StatusPending, claimed.Status)

	_, err = s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{
		ExpectedVersion:        p.Version,
		SetProcessingStartedAt: &started,
	})
	s.True(domain.IsErrorCode(err, domain.ErrCodeConcurrentModification), "got %v", err)

	success := domain.StatusSuccess
	ext := "ch_1"
	now := time.Now().UTC()
	done, err := s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{
		ExpectedVersion:          claimed.Version,
		Status:                   &success,
		GatewayPaymentID:         &ext,
		ProcessedAt:              &now,
		ClearProcessingStartedAt: true,
	})
	s.Require().NoError(err)
	s.Equal(domain.StatusSuccess, done.Status)
	s.Nil(done.ProcessingStartedAt)
	s.Require().NotNil(done.LastAttemptAt, "clearing the marker keeps the attempt time")
	s.WithinDuration(started, *done.LastAttemptAt, time.Millisecond)
	s.Require().NotNil(done.GatewayPaymentID)
	s.Equal("ch_1", *done.GatewayPaymentID)
	s.NotNil(done.ProcessedAt)
	s.Equal("https://pay.example/p", done.PaymentURL, "unset fields are kept")

	refunded := decimal.RequireFromString("250.25")
	partial, err := s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{
		ExpectedVersion: done.Version,
		RefundedAmount:  &refunded,
	})
	s.Require().NoError(err)
	s.True(partial.RefundedAmount.Equal(refunded))
	s.Equal(domain.StatusSuccess, partial.Status)

	_, err = s.store.UpdatePayment(s.ctx, uuid.New(), domain.PaymentUpdate{ExpectedVersion: 1})
	s.True(domain.IsErrorCode(err, domain.ErrCodeNotFound), "got %v", err)
}

func (s *StoreSuite) TestFindByGatewayRef() {
	p := s.newPayment("")
	ext := "ch_lookup"
	_, err := s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{ExpectedVersion: p.Version, GatewayPaymentID: &ext})
	s.Require().NoError(err)

	found, err := s.store.FindByGatewayRef(s.ctx, "sandbox", ext)
	s.Require().NoError(err)
	s.Equal(p.ID, found.ID)

	_, err = s.store.FindByGatewayRef(s.ctx, "stripe", ext)
	s.True(domain.IsErrorCode(err, domain.ErrCodeNotFound), "got %v", err)
}

func (s *StoreSuite) TestListByCustomer() {
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, s.newPayment("cust-list").ID)
		time.Sleep(2 * time.Millisecond)
	}
	s.newPayment("someone-else")

	all, err := s.store.ListByCustomer(s.ctx, "cust-list", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(ids[2], all[0].ID, "newest first")
	s.Equal(ids[0], all[2].ID)

	page, err := s.store.ListByCustomer(s.ctx, "cust-list", 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(ids[1], page[0].ID)

	none, err := s.store.ListByCustomer(s.ctx, "nobody", 10, 0)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *StoreSuite) TestFindStalePending() {
	p := s.newPayment("")
	time.Sleep(20 * time.Millisecond)

	stale, err := s.store.FindStalePending(s.ctx, 10*time.Millisecond, 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(p.ID, stale[0].ID)

	fresh, err := s.store.FindStalePending(s.ctx, time.Hour, 10)
	s.Require().NoError(err)
	s.Empty(fresh)

	failed := domain.StatusFailed
	_, err = s.store.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{ExpectedVersion: p.Version, Status: &failed})
	s.Require().NoError(err)
	time.Sleep(20 * time.Millisecond)

	stale, err = s.store.FindStalePending(s.ctx, 10*time.Millisecond, 10)
	s.Require().NoError(err)
	s.Empty(stale)
}

func (s *StoreSuite) TestRefunds() {
	p := s.newPayment("")
	r := s.newRefund(p.ID, "refund-key-a", "100.25")

	byKey, err := s.store.FindRefundByIdempotencyKey(s.ctx, "refund-key-a")
	s.Require().NoError(err)
	s.Require().NotNil(byKey)
	s.Equal(r.ID, byKey.ID)
	s.True(byKey.Amount.Equal(r.Amount))
	s.Equal(domain.RefundPending, byKey.Status)

	missing, err := s.store.FindRefundByIdempotencyKey(s.ctx, "nope")
	s.Require().NoError(err)
	s.Nil(missing)

	dup := *r
	dup.ID = uuid.New()
	err = s.store.SaveRefund(s.ctx, &dup)
	s.True(domain.IsErrorCode(err, domain.ErrCodeConflict), "got %v", err)

	r.Complete("re_1", time.Now().UTC())
	s.Require().NoError(s.store.UpdateRefund(s.ctx, r))

	byRef, err := s.store.FindRefundByGatewayRef(s.ctx, "re_1")
	s.Require().NoError(err)
	s.Require().NotNil(byRef)
	s.Equal(domain.RefundCompleted, byRef.Status)

	noRef, err := s.store.FindRefundByGatewayRef(s.ctx, "re_missing")
	s.Require().NoError(err)
	s.Nil(noRef)

	time.Sleep(2 * time.Millisecond)
	s.newRefund(p.ID, "refund-key-b", "50")
	list, err := s.store.ListRefunds(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(r.ID, list[0].ID, "oldest first")

	ghost := &domain.Refund{ID: uuid.New(), PaymentID: p.ID, Status: domain.RefundFailed, UpdatedAt: time.Now().UTC()}
	err = s.store.UpdateRefund(s.ctx, ghost)
	s.True(domain.IsErrorCode(err, domain.ErrCodeNotFound), "got %v", err)
}

func (s *StoreSuite) TestFindStalePendingRefunds() {
	p := s.newPayment("")
	pending := s.newRefund(p.ID, "stale-a", "10")
	done := s.newRefund(p.ID, "stale-b", "10")
	done.Fail("declined", done.UpdatedAt)
	s.Require().NoError(s.store.UpdateRefund(s.ctx, done))
	time.Sleep(20 * time.Millisecond)

	stale, err := s.store.FindStalePendingRefunds(s.ctx, 10*time.Millisecond, 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(pending.ID, stale[0].ID)
}

func (s *StoreSuite) TestWebhookEvents() {
	p := s.newPayment("")
	event := &domain.WebhookEvent{
		ID:              uuid.New(),
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       string(domain.EventPaymentSucceeded),
		Payload:         []byte(`{"id":"evt_1"}`),
		CreatedAt:       time.Now().UTC(),
	}

	processed, err := s.store.IsWebhookProcessed(s.ctx, "stripe", "evt_1")
	s.Require().NoError(err)
	s.False(processed)

	s.Require().NoError(s.store.RecordWebhookEvent(s.ctx, event))
	processed, err = s.store.IsWebhookProcessed(s.ctx, "stripe", "evt_1")
	s.Require().NoError(err)
	s.False(processed, "recorded but unprocessed")

	retry := *event
	retry.ID = uuid.New()
	retry.Processed = true
	retry.PaymentID = &p.ID
	s.Require().NoError(s.store.RecordWebhookEvent(s.ctx, &retry))

	processed, err = s.store.IsWebhookProcessed(s.ctx, "stripe", "evt_1")
	s.Require().NoError(err)
	s.True(processed)

	again := retry
	again.ID = uuid.New()
	err = s.store.RecordWebhookEvent(s.ctx, &again)
	s.True(domain.IsErrorCode(err, domain.ErrCodeDuplicateEvent), "got %v", err)

	processed, err = s.store.IsWebhookProcessed(s.ctx, "yookassa", "evt_1")
	s.Require().NoError(err)
	s.False(processed, "event ids are scoped by provider")
}

func (s *StoreSuite) TestCustomers() {
	phone := "+79990000000"
	c := &domain.Customer{
		ID:        uuid.New(),
		Email:     "anna@example.com",
		Name:      "Anna",
		Phone:     &phone,
		Metadata:  map[string]string{"tier": "gold"},
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.store.SaveCustomer(s.ctx, c))

	got, err := s.store.LoadCustomer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.Email, got.Email)
	s.Equal(c.Name, got.Name)
	s.Require().NotNil(got.Phone)
	s.Equal(phone, *got.Phone)
	s.Equal(c.Metadata, got.Metadata)

	dup := &domain.Customer{ID: uuid.New(), Email: "ANNA@example.com", Name: "Other", CreatedAt: time.Now().UTC()}
	err = s.store.SaveCustomer(s.ctx, dup)
	s.True(domain.IsErrorCode(err, domain.ErrCodeConflict), "got %v", err)

	_, err = s.store.LoadCustomer(s.ctx, uuid.New())
	s.True(domain.IsErrorCode(err, domain.ErrCodeNotFound), "got %v", err)
}

func (s *StoreSuite) TestWithTxRollsBack() {
	p := s.newPayment("")
	boom := errors.New("boom")

	err := s.store.WithTx(s.ctx, func(tx ports.Store) error {
		locked, err := tx.LoadPaymentForUpdate(s.ctx, p.ID)
		if err != nil {
			return err
		}
		cancelled := domain.StatusCancelled
		if _, err := tx.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{ExpectedVersion: locked.Version, Status: &cancelled}); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.SaveRefund(s.ctx, &domain.Refund{
			ID: uuid.New(), PaymentID: p.ID, Amount: decimal.NewFromInt(1),
			Status: domain.RefundPending, IdempotencyKey: "tx-key", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.LoadPayment(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, got.Status)
	s.Equal(p.Version, got.Version)

	r, err := s.store.FindRefundByIdempotencyKey(s.ctx, "tx-key")
	s.Require().NoError(err)
	s.Nil(r)
}

func (s *StoreSuite) TestWithTxCommits() {
	p := s.newPayment("")

	err := s.store.WithTx(s.ctx, func(tx ports.Store) error {
		locked, err := tx.LoadPaymentForUpdate(s.ctx, p.ID)
		if err != nil {
			return err
		}
		success := domain.StatusSuccess
		_, err = tx.UpdatePayment(s.ctx, p.ID, domain.PaymentUpdate{ExpectedVersion: locked.Version, Status: &success})
		return err
	})
	s.Require().NoError(err)

	got, err := s.store.LoadPayment(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusSuccess, got.Status)
}
