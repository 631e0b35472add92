package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/lock"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/memory"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memory.Store
	locker    *lock.KeyedMutex
	gateway   *MockGateway
	registry  *MockRegistry
	publisher *MockPublisher
	lifecycle *Lifecycle
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		GatewayTimeout: 2 * time.Second,
		PollInterval:   10 * time.Millisecond,
		LockTimeout:    time.Second,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		locker:    lock.NewKeyedMutex(),
		gateway:   &MockGateway{},
		publisher: &MockPublisher{},
	}
	f.registry = &MockRegistry{Gateway: f.gateway}
	f.lifecycle = f.newLifecycle(testOptions())
	return f
}

// newLifecycle builds another instance over the same store and locker, as a second replica would be.
func (f *fixture) newLifecycle(opts Options) *Lifecycle {
	return NewLifecycle(f.store, f.registry, f.locker, f.publisher, nil, testLogger(), opts)
}

func validCard() domain.PaymentDetails {
	return domain.PaymentDetails{Card: &domain.CardDetails{
		Number:   "4242424242424242",
		ExpMonth: 12,
		ExpYear:  time.Now().Year() + 2,
		CVC:      "123",
		Holder:   "IVAN PETROV",
	}}
}

func rub(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func amountPtr(v int64) *decimal.Decimal {
	d := rub(v)
	return &d
}

func (f *fixture) createPayment(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	p, err := f.lifecycle.CreatePayment(context.Background(), CreatePaymentCommand{
		Amount:   rub(amount),
		Currency: "RUB",
		Method:   domain.MethodCard,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) successfulPayment(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	p := f.createPayment(t, amount)
	processed, err := f.lifecycle.ProcessPayment(context.Background(), p.ID, validCard())
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, processed.Status)
	return processed
}

// seed stores a payment directly in the given status.
func (f *fixture) seed(t *testing.T, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	now := time.Now().UTC()
	ext := "ch_seeded_" + uuid.NewString()
	p := &domain.Payment{
		ID:               uuid.New(),
		Amount:           rub(1000),
		Currency:         "RUB",
		Method:           domain.MethodCard,
		Status:           status,
		Gateway:          "mock",
		GatewayPaymentID: &ext,
		RefundedAmount:   decimal.Zero,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if status == domain.StatusRefunded {
		p.RefundedAmount = p.Amount
	}
	require.NoError(t, f.store.SavePayment(context.Background(), p))
	return p
}

func TestLifecycle_CreatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("valid input is stored as pending", func(t *testing.T) {
		customer := "cust-1"
		p, err := f.lifecycle.CreatePayment(ctx, CreatePaymentCommand{
			Amount:     decimal.RequireFromString("1000.50"),
			Currency:   "rub",
			Method:     domain.MethodCard,
			CustomerID: &customer,
			Metadata:   map[string]string{"order": "42"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, p.Status)
		assert.Equal(t, "RUB", p.Currency)
		assert.Equal(t, "mock", p.Gateway)
		assert.Contains(t, p.PaymentURL, p.ID.String())

		stored, err := f.store.LoadPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, stored.ID)
		assert.Equal(t, "42", stored.Metadata["order"])
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := map[uuid.UUID]bool{}
		for i := 0; i < 50; i++ {
			p := f.createPayment(t, 100)
			assert.False(t, seen[p.ID])
			seen[p.ID] = true
		}
	})

	t.Run("currency defaults when omitted", func(t *testing.T) {
		p, err := f.lifecycle.CreatePayment(ctx, CreatePaymentCommand{Amount: rub(10), Method: domain.MethodCard})
		require.NoError(t, err)
		assert.Equal(t, "RUB", p.Currency)
	})

	tests := []struct {
		name string
		cmd  CreatePaymentCommand
		code string
	}{
		{"zero amount", CreatePaymentCommand{Amount: decimal.Zero, Currency: "RUB", Method: domain.MethodCard}, domain.ErrCodeInvalidAmount},
		{"negative amount", CreatePaymentCommand{Amount: rub(-5), Currency: "RUB", Method: domain.MethodCard}, domain.ErrCodeInvalidAmount},
		{"amount beyond int64 minor units", CreatePaymentCommand{Amount: decimal.RequireFromString("100000000000000000000"), Currency: "RUB", Method: domain.MethodCard}, domain.ErrCodeInvalidAmount},
		{"sub-kopeck amount", CreatePaymentCommand{Amount: decimal.RequireFromString("1.001"), Currency: "RUB", Method: domain.MethodCard}, domain.ErrCodeInvalidAmount},
		{"unknown currency", CreatePaymentCommand{Amount: rub(10), Currency: "XYZ", Method: domain.MethodCard}, domain.ErrCodeValidation},
		{"unknown method", CreatePaymentCommand{Amount: rub(10), Currency: "RUB", Method: "cheque"}, domain.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lifecycle.CreatePayment(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, domain.IsErrorCode(err, tt.code), "got %v", err)
		})
	}
}

func TestLifecycle_CreateProcessFullRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPayment(t, 1000)
	assert.Equal(t, domain.StatusPending, p.Status)

	processed, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, processed.Status)
	require.NotNil(t, processed.ProcessedAt)
	require.NotNil(t, processed.GatewayPaymentID)
	assert.Nil(t, processed.ProcessingStartedAt)

	refund, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, refund.Status)
	assert.True(t, refund.Amount.Equal(rub(1000)))

	final, err := f.lifecycle.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, final.Status)
	assert.True(t, final.RefundedAmount.Equal(rub(1000)))

	assert.Equal(t, []domain.LifecycleEventType{
		domain.LifecyclePaymentCreated,
		domain.LifecyclePaymentSucceeded,
		domain.LifecycleRefundCompleted,
		domain.LifecyclePaymentRefunded,
	}, f.publisher.Types())
}

func TestLifecycle_ProcessPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.lifecycle.ProcessPayment(ctx, uuid.New(), validCard())
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
		assert.Equal(t, 0, f.gateway.GetCalls("CreateCharge"))
	})

	t.Run("charge is sent with the payment's idempotency key", func(t *testing.T) {
		f := newFixture(t)
		var got domain.ChargeRequest
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			got = req
			return &domain.ChargeResult{ExternalID: "ch_1", Status: domain.ProviderSucceeded}, nil
		}
		p := f.createPayment(t, 1000)
		_, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.NoError(t, err)
		assert.Equal(t, "charge-"+p.ID.String(), got.IdempotencyKey)
		assert.Equal(t, int64(100000), got.AmountMinor)
		assert.Equal(t, "RUB", got.Currency)
	})

	t.Run("gateway decline fails the payment", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			return &domain.ChargeResult{ExternalID: "ch_2", Status: domain.ProviderFailed, FailureReason: "insufficient_funds"}, nil
		}
		p := f.createPayment(t, 1000)

		failed, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.Error(t, err)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayRejected))
		require.NotNil(t, failed)
		assert.Equal(t, domain.StatusFailed, failed.Status)
		require.NotNil(t, failed.ErrorReason)
		assert.Equal(t, "insufficient_funds", *failed.ErrorReason)

		_, err = f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))
		assert.Equal(t, 1, f.gateway.GetCalls("CreateCharge"))
	})

	t.Run("malformed card fails without a gateway call", func(t *testing.T) {
		f := newFixture(t)
		p := f.createPayment(t, 1000)
		details := validCard()
		details.Card.ExpYear = 2001

		failed, err := f.lifecycle.ProcessPayment(ctx, p.ID, details)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayRejected))
		assert.Equal(t, domain.StatusFailed, failed.Status)
		assert.Equal(t, 0, f.gateway.GetCalls("CreateCharge"))
	})

	t.Run("missing card details", func(t *testing.T) {
		f := newFixture(t)
		p := f.createPayment(t, 1000)
		failed, err := f.lifecycle.ProcessPayment(ctx, p.ID, domain.PaymentDetails{})
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayRejected))
		assert.Equal(t, domain.StatusFailed, failed.Status)
	})

	t.Run("requires capture is captured", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			return &domain.ChargeResult{ExternalID: "ch_3", Status: domain.ProviderRequiresCapture}, nil
		}
		p := f.createPayment(t, 1000)
		processed, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, processed.Status)
		assert.Equal(t, 1, f.gateway.GetCalls("CaptureCharge"))
	})

	t.Run("pending charge keeps the payment pending", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			return &domain.ChargeResult{ExternalID: "ch_4", Status: domain.ProviderPending, ConfirmationURL: "https://3ds.example.com/ch_4"}, nil
		}
		p := f.createPayment(t, 1000)
		pending, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, pending.Status)
		require.NotNil(t, pending.ConfirmationURL)
		assert.Equal(t, "https://3ds.example.com/ch_4", *pending.ConfirmationURL)
		assert.Nil(t, pending.ProcessingStartedAt)

		f.gateway.GetChargeFn = func(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
			assert.Equal(t, "ch_4", externalID)
			return &domain.ChargeResult{ExternalID: externalID, Status: domain.ProviderSucceeded}, nil
		}
		settled, err := f.lifecycle.ReconcilePayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, settled.Status)
		assert.Equal(t, 1, f.gateway.GetCalls("CreateCharge"))
	})
}

func TestLifecycle_ProcessPayment_TimeoutLeavesPending(t *testing.T) {
	f := newFixture(t)
	opts := testOptions()
	opts.GatewayTimeout = 50 * time.Millisecond
	lc := f.newLifecycle(opts)
	f.gateway.Delay = 200 * time.Millisecond
	f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.ChargeResult{ExternalID: "ch_t", Status: domain.ProviderSucceeded}, nil
	}

	p := f.createPayment(t, 1000)
	_, err := lc.ProcessPayment(context.Background(), p.ID, validCard())
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable))
	assert.True(t, domain.IsRetryableError(err) || domain.IsTransient(err))

	stored, err := f.store.LoadPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.ProcessingStartedAt)
	assert.NotNil(t, stored.LastAttemptAt, "the attempt is remembered for reconciliation")
	assert.Nil(t, stored.ErrorReason)

	f.gateway.Delay = 0
	processed, err := lc.ProcessPayment(context.Background(), p.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, processed.Status)
}

func TestLifecycle_ProcessPayment_ClientDisconnect(t *testing.T) {
	f := newFixture(t)
	f.gateway.Delay = 150 * time.Millisecond
	p := f.createPayment(t, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Eventually(t, func() bool {
		stored, err := f.store.LoadPayment(context.Background(), p.ID)
		return err == nil && stored.Status == domain.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	errs := f.gateway.ContextErrors()
	require.Len(t, errs, 1)
	assert.NoError(t, errs[0], "gateway call must not see the caller's cancellation")
}

func TestLifecycle_ProcessPayment_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.gateway.Delay = 100 * time.Millisecond
	p := f.createPayment(t, 1000)

	const numRequests = 10
	var wg sync.WaitGroup
	results := make(chan error, numRequests)
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.lifecycle.ProcessPayment(context.Background(), p.ID, validCard())
			if err == nil && got.Status != domain.StatusSuccess {
				t.Errorf("expected SUCCESS, got %s", got.Status)
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		// A caller arriving after settlement sees the finished payment as a transition error.
		if err != nil {
			assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, f.gateway.GetCalls("CreateCharge"))

	stored, err := f.store.LoadPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
}

func TestLifecycle_ProcessPayment_SecondInstanceWaits(t *testing.T) {
	f := newFixture(t)
	f.gateway.Delay = 150 * time.Millisecond
	replica := f.newLifecycle(testOptions())
	p := f.createPayment(t, 1000)

	first := make(chan error, 1)
	go func() {
		_, err := f.lifecycle.ProcessPayment(context.Background(), p.ID, validCard())
		first <- err
	}()

	require.Eventually(t, func() bool {
		stored, err := f.store.LoadPayment(context.Background(), p.ID)
		return err == nil && stored.ProcessingStartedAt != nil
	}, time.Second, 5*time.Millisecond)

	got, err := replica.ProcessPayment(context.Background(), p.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	require.NoError(t, <-first)
	assert.Equal(t, 1, f.gateway.GetCalls("CreateCharge"))
}

func TestLifecycle_ProcessPayment_SecondInstanceSharesUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gateway.Delay = 150 * time.Millisecond
	f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
		return nil, context.DeadlineExceeded
	}
	replica := f.newLifecycle(testOptions())
	p := f.createPayment(t, 1000)

	first := make(chan error, 1)
	go func() {
		_, err := f.lifecycle.ProcessPayment(context.Background(), p.ID, validCard())
		first <- err
	}()

	require.Eventually(t, func() bool {
		stored, err := f.store.LoadPayment(context.Background(), p.ID)
		return err == nil && stored.ProcessingStartedAt != nil
	}, time.Second, 5*time.Millisecond)

	got, err := replica.ProcessPayment(context.Background(), p.ID, validCard())
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable), "got %v", err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPending, got.Status)

	firstErr := <-first
	assert.True(t, domain.IsErrorCode(firstErr, domain.ErrCodeGatewayUnavailable), "got %v", firstErr)
	assert.Equal(t, 1, f.gateway.GetCalls("CreateCharge"))
}

func TestLifecycle_ReconcilePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("never attempted payment is left alone", func(t *testing.T) {
		f := newFixture(t)
		p := f.createPayment(t, 1000)

		got, err := f.lifecycle.ReconcilePayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Zero(t, f.gateway.GetCalls("CreateCharge"))
	})

	t.Run("lost charge response is re-submitted with the same key", func(t *testing.T) {
		f := newFixture(t)
		var keys []string
		var mu sync.Mutex
		lost := true
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			mu.Lock()
			defer mu.Unlock()
			keys = append(keys, req.IdempotencyKey)
			if lost {
				lost = false
				return nil, context.DeadlineExceeded
			}
			return &domain.ChargeResult{ExternalID: "ch_" + req.PaymentID.String(), Status: domain.ProviderSucceeded}, nil
		}
		p := f.createPayment(t, 1000)

		_, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable), "got %v", err)

		got, err := f.lifecycle.ReconcilePayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, got.Status)
		require.Len(t, keys, 2)
		assert.Equal(t, keys[0], keys[1])
		assert.Equal(t, p.ChargeIdempotencyKey(), keys[1])
	})
}

func TestLifecycle_CancelPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("unsubmitted payment is cancelled locally", func(t *testing.T) {
		f := newFixture(t)
		p := f.createPayment(t, 1000)
		cancelled, err := f.lifecycle.CancelPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		assert.Equal(t, 0, f.gateway.GetCalls("CancelCharge"))
	})

	t.Run("submitted payment is cancelled at the gateway", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			return &domain.ChargeResult{ExternalID: "ch_c", Status: domain.ProviderPending}, nil
		}
		p := f.createPayment(t, 1000)
		_, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.NoError(t, err)

		cancelled, err := f.lifecycle.CancelPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		assert.Equal(t, 1, f.gateway.GetCalls("CancelCharge"))
	})

	t.Run("gateway outage leaves the payment pending", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.CreateChargeFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
			return &domain.ChargeResult{ExternalID: "ch_d", Status: domain.ProviderPending}, nil
		}
		f.gateway.CancelChargeFn = func(ctx context.Context, externalID, key string) (*domain.ChargeResult, error) {
			return nil, context.DeadlineExceeded
		}
		p := f.createPayment(t, 1000)
		_, err := f.lifecycle.ProcessPayment(ctx, p.ID, validCard())
		require.NoError(t, err)

		_, err = f.lifecycle.CancelPayment(ctx, p.ID)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable))

		stored, err := f.store.LoadPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, stored.Status)
		assert.Nil(t, stored.ProcessingStartedAt)
	})
}

func TestLifecycle_TransitionTable(t *testing.T) {
	ctx := context.Background()

	type op struct {
		name    string
		run     func(f *fixture, id uuid.UUID) error
		allowed map[domain.PaymentStatus]bool
	}
	ops := []op{
		{
			name: "process",
			run: func(f *fixture, id uuid.UUID) error {
				_, err := f.lifecycle.ProcessPayment(ctx, id, validCard())
				return err
			},
			allowed: map[domain.PaymentStatus]bool{domain.StatusPending: true},
		},
		{
			name: "cancel",
			run: func(f *fixture, id uuid.UUID) error {
				_, err := f.lifecycle.CancelPayment(ctx, id)
				return err
			},
			allowed: map[domain.PaymentStatus]bool{domain.StatusPending: true},
		},
		{
			name: "refund",
			run: func(f *fixture, id uuid.UUID) error {
				_, err := f.lifecycle.RefundPayment(ctx, RefundCommand{PaymentID: id})
				return err
			},
			allowed: map[domain.PaymentStatus]bool{domain.StatusSuccess: true},
		},
	}

	for _, o := range ops {
		for _, status := range domain.AllStatuses {
			t.Run(o.name+"/"+string(status), func(t *testing.T) {
				f := newFixture(t)
				p := f.seed(t, status)
				err := o.run(f, p.ID)
				if o.allowed[status] {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition), "got %v", err)

				stored, loadErr := f.store.LoadPayment(ctx, p.ID)
				require.NoError(t, loadErr)
				assert.Equal(t, status, stored.Status)
				assert.Equal(t, p.Version, stored.Version, "rejected operations must not write")
			})
		}
	}
}

func TestLifecycle_ListByCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := "cust-42"
	for i := 0; i < 3; i++ {
		_, err := f.lifecycle.CreatePayment(ctx, CreatePaymentCommand{
			Amount: rub(100), Currency: "RUB", Method: domain.MethodCard, CustomerID: &customer,
		})
		require.NoError(t, err)
	}
	f.createPayment(t, 100)

	got, err := f.lifecycle.ListByCustomer(ctx, customer, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = f.lifecycle.ListByCustomer(ctx, customer, 2, 2)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.lifecycle.ListByCustomer(ctx, "", 10, 0)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}
