package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sql.DB
	q  Executor
}

var _ ports.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

const paymentColumns = `id, amount, currency, method, status, customer_id, metadata,
	description, return_url, payment_url, confirmation_url,
	gateway, gateway_payment_id, error_reason, refunded_amount,
	processing_started_at, version, created_at, updated_at, processed_at, last_attempt_at`

const refundColumns = `id, payment_id, amount, reason, status, idempotency_key,
	gateway_refund_id, error_reason, created_at, updated_at`

func (s *Store) WithTx(ctx context.Context, fn func(ports.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) SavePayment(ctx context.Context, p *domain.Payment) error {
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16, ?17, ?18, ?19, ?20, ?21)`,
		p.ID.String(),
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
		utcPtr(p.ProcessingStartedAt),
		p.Version,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
		utcPtr(p.ProcessedAt),
		utcPtr(p.LastAttemptAt),
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
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?1`, id.String())
	return scanPayment(row, id.String())
}

// LoadPaymentForUpdate is LoadPayment: the single connection already serializes transactions.
func (s *Store) LoadPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.LoadPayment(ctx, id)
}

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

	res, err := s.q.ExecContext(ctx, `
			UPDATE payments SET
				status = COALESCE(?2, status),
				gateway_payment_id = COALESCE(?3, gateway_payment_id),
				confirmation_url = COALESCE(?4, confirmation_url),
				error_reason = COALESCE(?5, error_reason),
				refunded_amount = COALESCE(?6, refunded_amount),
				processed_at = COALESCE(?7, processed_at),
				processing_started_at = CASE WHEN ?8 THEN NULL ELSE COALESCE(?9, processing_started_at) END,
				last_attempt_at = COALESCE(?12, last_attempt_at),
				version = version + 1,
				updated_at = MAX(updated_at, ?10)
			WHERE id = ?1 AND version = ?11`,
		id.String(),
		status,
		u.GatewayPaymentID,
		u.ConfirmationURL,
		u.ErrorReason,
		refunded,
		utcPtr(u.ProcessedAt),
		u.ClearProcessingStartedAt,
		utcPtr(u.SetProcessingStartedAt),
		time.Now().UTC(),
		u.ExpectedVersion,
		utcPtr(u.SetLastAttemptAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, domain.NewConflictError("gateway reference already belongs to another payment")
		}
		return nil, fmt.Errorf("failed to update payment record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update payment record: %w", err)
	}

	p, err := s.LoadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.NewConcurrentModificationError(id.String())
	}
	return p, nil
}

func (s *Store) FindByGatewayRef(ctx context.Context, gateway, externalID string) (*domain.Payment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = ?1 AND gateway_payment_id = ?2`,
		gateway, externalID)
	p, err := scanPayment(row, externalID)
	if err != nil && domain.IsErrorCode(err, domain.ErrCodeNotFound) {
		return nil, domain.NewNotFoundError("payment with gateway reference", gateway+"/"+externalID)
	}
	return p, err
}

func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*domain.Payment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			WHERE customer_id = ?1
			ORDER BY created_at DESC
			LIMIT ?2 OFFSET ?3`,
		customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query payments by customer_id: %w", err)
	}
	return collectPayments(rows)
}

func (s *Store) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			WHERE status = 'PENDING' AND updated_at < ?1
			ORDER BY updated_at ASC
			LIMIT ?2`,
		time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending payments: %w", err)
	}
	return collectPayments(rows)
}

func (s *Store) SaveRefund(ctx context.Context, r *domain.Refund) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO refunds (`+refundColumns+`)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`,
		r.ID.String(),
		r.PaymentID.String(),
		r.Amount.String(),
		r.Reason,
		string(r.Status),
		r.IdempotencyKey,
		r.GatewayRefundID,
		r.ErrorReason,
		r.CreatedAt.UTC(),
		r.UpdatedAt.UTC(),
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
	res, err := s.q.ExecContext(ctx,
		`UPDATE refunds SET status = ?1, gateway_refund_id = ?2, error_reason = ?3, updated_at = ?4 WHERE id = ?5`,
		string(r.Status),
		r.GatewayRefundID,
		r.ErrorReason,
		r.UpdatedAt.UTC(),
		r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update refund record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update refund record: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("refund", r.ID.String())
	}
	return nil
}

func (s *Store) FindRefundByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE idempotency_key = ?1`, key)
	return scanOptionalRefund(row)
}

func (s *Store) FindRefundByGatewayRef(ctx context.Context, gatewayRefundID string) (*domain.Refund, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE gateway_refund_id = ?1 LIMIT 1`, gatewayRefundID)
	return scanOptionalRefund(row)
}

func (s *Store) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*domain.Refund, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = ?1 ORDER BY created_at ASC`,
		paymentID.String())
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	return collectRefunds(rows)
}

func (s *Store) FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
			SELECT `+refundColumns+`
			FROM refunds
			WHERE status = 'pending' AND updated_at < ?1
			ORDER BY updated_at ASC
			LIMIT ?2`,
		time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending refunds: %w", err)
	}
	return collectRefunds(rows)
}

func (s *Store) RecordWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	var paymentID *string
	if e.PaymentID != nil {
		v := e.PaymentID.String()
		paymentID = &v
	}

	res, err := s.q.ExecContext(ctx, `
			INSERT INTO webhook_events (id, provider, provider_event_id, event_type, payment_id, payload, processed, created_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)
			ON CONFLICT (provider, provider_event_id) DO UPDATE
				SET processed = excluded.processed, payment_id = excluded.payment_id
				WHERE webhook_events.processed = 0`,
		e.ID.String(),
		e.Provider,
		e.ProviderEventID,
		e.EventType,
		paymentID,
		string(e.Payload),
		e.Processed,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if n == 0 {
		return domain.NewDuplicateEventError(e.Provider, e.ProviderEventID)
	}
	return nil
}

func (s *Store) IsWebhookProcessed(ctx context.Context, provider, providerEventID string) (bool, error) {
	var processed bool
	err := s.q.QueryRowContext(ctx,
		`SELECT processed FROM webhook_events WHERE provider = ?1 AND provider_event_id = ?2`,
		provider, providerEventID).Scan(&processed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO customers (id, email, name, phone, metadata, created_at) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		c.ID.String(), c.Email, c.Name, c.Phone, metadata, c.CreatedAt.UTC())
	if err != nil {
		if IsUniqueViolation(err) {
			if strings.Contains(err.Error(), "customers.email") {
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
		metadata string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, email, name, phone, metadata, created_at FROM customers WHERE id = ?1`, id.String()).
		Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &metadata, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("customer", id.String())
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	if c.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner, ref string) (*domain.Payment, error) {
	var (
		p                domain.Payment
		amount, refunded string
		method, status   string
		metadata         string
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
		if errors.Is(err, sql.ErrNoRows) {
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

func collectPayments(rows *sql.Rows) ([]*domain.Payment, error) {
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows, "")
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func scanRefund(row scanner) (*domain.Refund, error) {
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

func scanOptionalRefund(row scanner) (*domain.Refund, error) {
	r, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}
	return r, nil
}

func collectRefunds(rows *sql.Rows) ([]*domain.Refund, error) {
	defer rows.Close()

	var refunds []*domain.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}
	return refunds, nil
}
