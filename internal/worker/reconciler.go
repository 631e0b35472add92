package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StaleFinder lists work whose last gateway attempt ended without a final answer.
type StaleFinder interface {
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error)
	FindStalePendingRefunds(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Refund, error)
}

// Driver re-drives a payment or refund through the lifecycle.
type Driver interface {
	ReconcilePayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	RetryRefund(ctx context.Context, refund *domain.Refund) (*domain.Refund, error)
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	StaleAfter  time.Duration
	Concurrency int
}

type Reconciler struct {
	store   StaleFinder
	driver  Driver
	metrics *telemetry.Metrics
	cfg     Config
	logger  *slog.Logger
}

func NewReconciler(store StaleFinder, driver Driver, metrics *telemetry.Metrics, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Reconciler{
		store:   store,
		driver:  driver,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("starting background reconciler",
		"interval", r.cfg.Interval,
		"batch_size", r.cfg.BatchSize,
		"stale_after", r.cfg.StaleAfter,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping background reconciler")
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

// RunOnce executes a single reconciliation cycle.
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	r.metrics.ReconcilerRun()
	r.reconcileStalePayments(ctx)
	r.retryPendingRefunds(ctx)
}

func (r *Reconciler) reconcileStalePayments(ctx context.Context) {
	pending, err := r.store.FindStalePending(ctx, r.cfg.StaleAfter, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to fetch stale payments", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	r.logger.Info("reconciling stale payments", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, p := range pending {
		g.Go(func() error {
			settled, err := r.driver.ReconcilePayment(gctx, p.ID)
			switch {
			case err != nil:
				r.metrics.Reconciled("payment", "error")
				r.logger.Warn("payment reconciliation failed", "payment_id", p.ID, "error", err)
			case settled.Status == domain.StatusPending:
				r.metrics.Reconciled("payment", "pending")
			default:
				r.metrics.Reconciled("payment", "settled")
				r.logger.Info("reconciled payment", "payment_id", p.ID, "status", settled.Status)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) retryPendingRefunds(ctx context.Context) {
	refunds, err := r.store.FindStalePendingRefunds(ctx, r.cfg.StaleAfter, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to fetch pending refunds", "error", err)
		return
	}
	if len(refunds) == 0 {
		return
	}

	r.logger.Info("retrying pending refunds", "count", len(refunds))

	// Refunds of one payment share its lock and balance, so they run one at a time.
	for _, refund := range refunds {
		if ctx.Err() != nil {
			return
		}
		out, err := r.driver.RetryRefund(ctx, refund)
		switch {
		case domain.IsErrorCode(err, domain.ErrCodeGatewayUnavailable):
			r.metrics.Reconciled("refund", "pending")
			r.logger.Warn("refund still pending", "refund_id", refund.ID, "payment_id", refund.PaymentID, "error", err)
		case err != nil:
			r.metrics.Reconciled("refund", "error")
			r.logger.Error("refund retry failed", "refund_id", refund.ID, "payment_id", refund.PaymentID, "error", err)
		default:
			r.metrics.Reconciled("refund", string(out.Status))
			r.logger.Info("retried refund", "refund_id", refund.ID, "status", out.Status)
		}
	}
}
