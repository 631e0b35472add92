package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
	q    Executor
}

var _ ports.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		pool: db.Pool,
		q:    db.Pool,
	}
}

const paymentColumns = `id, amount::text, currency, method, status, customer_id, metadata,
	description, return_url, payment_url, confirmation_url,
	gateway, gateway_payment_id, error_reason, refunded_amount::text,
	processing_started_at, version, created_at, updated_at, processed_at, last_attempt_at`

const refundColumns = `id, payment_id, amount::text, reason, status, idempotency_key,
	gateway_refund_id, error_reason, created_at, updated_at`

// WithTx executes a function within a database transaction
func (s *Store) WithTx(ctx context.Context, fn func(ports.Store) error) error {
	if _, inTx := s.q.(pgx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) SavePayment(ctx context.Context, p *domain.Payment) error {
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO payments (
				id, amount, currency, method, status, customer_id, metadata,
				description, return_url, payment_url, confirmation_url,
				gateway, gateway_payment_id, error_reason, refunded_amount,
				processing_started_at, version, created_at, updated_at, processed_at, last_attempt_at)
			VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::numeric, $16, $17, $18, $19, $20, $21)`

	_, err = s.q.Exec(ctx, query,
		p.ID,
		p.Amount.String(),
		p.Currency,
		string(p.Method),
		string(p.Status),
		p.CustomerID,
		metadata,
		p.Description,
		p.ReturnURL,
		p.PaymentURL,
		p.ConfirmationURL,
		p.Gateway,
		p.GatewayPaymentID,
		p.ErrorReason,
		p.RefundedAmount.String(),
		p.ProcessingStartedAt,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
		p.ProcessedAt,
		p.LastAttemptAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewConflictError("payment " + p.ID.String() + " already exists")
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Store) LoadPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row, id.String())
}

// LoadPaymentForUpdate retrieves a payment and locks the row until the transaction ends.
func (s *Store) LoadPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row, id.String())
}

// UpdatePayment applies the set fields of the update when the stored version still matches.
func (s *Store) UpdatePayment(ctx context.Context, id uuid.UUID, u domain.PaymentUpdate) (*domain.Payment, error) {
	var status, refunded *string
	if u.Status != nil {
		v := string(*u.Status)
		status = &v
	}
	if u.RefundedAmount != nil {
		v := u.RefundedAmount.String()
		refunded = &v
	}

	query := `
			UPDATE payments SET
				status = COALESCE($2, status),
				gateway_payment_id = COALESCE($3, gateway_payment_id),
				confirmation_url = COALESCE($4, confirmation_url),
				error_reason = COALESCE($5, error_reason),
				refunded_amount = COALESCE($6::numeric, refunded_amount),
				processed_at = COALESCE($7, processed_at),
				processing_started_at = CASE WHEN $8::boolean THEN NULL ELSE COALESCE($9, processing_started_at) END,
				last_attempt_at = COALESCE($12, last_attempt_at),
				version = version + 1,
				updated_at = GREATEST(updated_at, $10)
			WHERE id = $1 AND version = $11
			RETURNING ` + paymentColumns

	row := s.q.QueryRow(ctx, query,
		id,
		status,
		u.GatewayPaymentID,
		u.ConfirmationURL,
		u.ErrorReason,
		refunded,
		u.ProcessedAt,
		u.ClearProcessingStartedAt,
		u.SetProcessingStartedAt,
		time.Now().UTC(),
		u.ExpectedVersion,
		u.SetLastAttemptAt,
	)
	p, err := scanPayment(row, id.String())
	if err == nil {
		return p, nil
	}
	if !domain.IsErrorCode(err, domain.ErrCodeNotFound) {
		if IsUniqueViolation(err) {
			return nil, domain.NewConflictError("gateway reference already belongs to another payment")
		}
		return nil, fmt.Errorf("failed to update payment record: %w", err)
	}

	// No row matched: either the payment is missing or its version moved on.
	if _, loadErr := s.LoadPayment(ctx, id); loadErr != nil {
		return nil, loadErr
	}
	return nil, domain.NewConcurrentModificationError(id.String())
}

func (s *Store) FindByGatewayRef(ctx context.Context, gateway, externalID string) (*domain.Payment, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = $1 AND gateway_payment_id = $2`,
		gateway, externalID)
	p, err := scanPayment(row, externalID)
	if err != nil && domain.IsErrorCode(err, domain.ErrCodeNotFound) {
		return nil, domain.NewNotFoundError("payment with gateway reference", gateway+"/"+externalID)
	}
	return p, err
}

func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error) {
	query := `
			SELECT ` + paymentColumns + `
			FROM payments
			WHERE customer_id = $1
			ORDER BY created_at DESC
			LIMIT NULLIF($2, 0) OFFSET $3`

	rows, err := s.q.Query(ctx, query, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query payments by customer_id: %w", err)
	}
	return collectPayments(rows)
}

// FindStalePending returns PENDING payments untouched for longer than olderThan, oldest first.
func (s *Store) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
			SELECT ` + paymentColumns + `
			FROM payments
			WHERE status = 'PENDING' AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT NULLIF($2, 0)`

	rows, err := s.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending payments: %w", err)
	}
	return collectPayments(rows)
}

func (s *Store) SaveRefund(ctx context.Context, r *domain.Refund) error {
	query := `INSERT INTO refunds (
				id, payment_id, amount, reason, status, idempotency_key,
				gateway_refund_id, error_reason, created_at, updated_at)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.q.Exec(ctx, query,
		r.ID,
		r.PaymentID,
		r.Amount.String(),
		r.Reason,
		string(r.Status),
		r.IdempotencyKey,
		r.GatewayRefundID,
		r.ErrorReason,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewConflictError("refund idempotency key " + r.IdempotencyKey + " already used")
		}
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (s *Store) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	query := `
			UPDATE refunds SET status = $1, gateway_refund_id = $2, error_reason = $3, updated_at = $4
			WHERE id = $5`

	tag, err := s.q.Exec(ctx, query,
		string(r.Status),
		r.GatewayRefundID,
		r.ErrorReason,
		r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update refund record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("refund", r.ID.String())
	}
	return nil
}

func (s *Store) FindRefundByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error) {
	row := s.q.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE idempotency_key = $1`, key)
	return scanOptionalRefund(row)
}

func (s *Store) FindRefundByGatewayRef(ctx context.Context, gatewayRefundID string) (*domain.Refund, error) {
	row := s.q.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE gateway_refund_id = $1 LIMIT 1`, gatewayRefundID)
	return scanOptionalRefund(row)
}

func (s *Store) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`,
		paymentID)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	return collectRefunds(rows)
}

func (s *Store) FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.q.Query(ctx, `
			SELECT `+refundColumns+`
			FROM refunds
			WHERE status = 'pending' AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT NULLIF($2, 0)`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending refunds: %w", err)
	}
	return collectRefunds(rows)
}

// RecordWebhookEvent inserts the event, or marks an earlier unprocessed record of it.
func (s *Store) RecordWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	query := `
			INSERT INTO webhook_events (id, provider, provider_event_id, event_type, payment_id, payload, processed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (provider, provider_event_id) DO UPDATE
				SET processed = EXCLUDED.processed, payment_id = EXCLUDED.payment_id
				WHERE webhook_events.processed = FALSE`

	tag, err := s.q.Exec(ctx, query,
		e.ID,
		e.Provider,
		e.ProviderEventID,
		e.EventType,
		e.PaymentID,
		[]byte(e.Payload),
		e.Processed,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDuplicateEventError(e.Provider, e.ProviderEventID)
	}
	return nil
}

func (s *Store) IsWebhookProcessed(ctx context.Context, provider, providerEventID string) (bool, error) {
	var processed bool
	err := s.q.QueryRow(ctx,
		`SELECT processed FROM webhook_events WHERE provider = $1 AND provider_event_id = $2`,
		provider, providerEventID).Scan(&processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return processed, nil
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	metadata, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO customers (id, email, name, phone, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Email, c.Name, c.Phone, metadata, c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			if constraintName(err) == "customers_email_key" {
				return domain.NewConflictError("customer with email " + c.Email + " already exists")
			}
			return domain.NewConflictError("customer " + c.ID.String() + " already exists")
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (s *Store) LoadCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	var (
		c        domain.Customer
		metadata []byte
	)
	err := s.q.QueryRow(ctx,
		`SELECT id, email, name, phone, metadata, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &metadata, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("customer", id.String())
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	if c.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}

func unmarshalMetadata(b []byte) (map[string]string, error) {
	if len(b) == 0 || string(b) == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

// scanPayment scans a row selected with paymentColumns.
func scanPayment(row pgx.Row, ref string) (*domain.Payment, error) {
	var (
		p                domain.Payment
		amount, refunded string
		method, status   string
		metadata         []byte
	)
	err := row.Scan(
		&p.ID,
		&amount,
		&p.Currency,
		&method,
		&status,
		&p.CustomerID,
		&metadata,
		&p.Description,
		&p.ReturnURL,
		&p.PaymentURL,
		&p.ConfirmationURL,
		&p.Gateway,
		&p.GatewayPaymentID,
		&p.ErrorReason,
		&refunded,
		&p.ProcessingStartedAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ProcessedAt,
		&p.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewPaymentNotFoundError(ref)
		}
		return nil, err
	}

	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if p.RefundedAmount, err = decimal.NewFromString(refunded); err != nil {
		return nil, fmt.Errorf("failed to parse refunded amount: %w", err)
	}
	if p.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]*domain.Payment, error) {
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Payment, error) {
		return scanPayment(row, "")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan payments: %w", err)
	}
	return payments, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	var (
		r              domain.Refund
		amount, status string
	)
	err := row.Scan(
		&r.ID,
		&r.PaymentID,
		&amount,
		&r.Reason,
		&status,
		&r.IdempotencyKey,
		&r.GatewayRefundID,
		&r.ErrorReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RefundStatus(status)
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse refund amount: %w", err)
	}
	return &r, nil
}

func scanOptionalRefund(row pgx.Row) (*domain.Refund, error) {
	r, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}
	return r, nil
}

func collectRefunds(rows pgx.Rows) ([]*domain.Refund, error) {
	refunds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Refund, error) {
		return scanRefund(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan refunds: %w", err)
	}
	return refunds, nil
}
