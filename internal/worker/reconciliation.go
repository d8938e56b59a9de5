package worker

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/metrics"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
	"github.com/shamtarani05/aeglekart-orders/internal/service"
)

const sweepBatchSize = 50

// ReconciliationWorker periodically sweeps orders stuck in pending. A lost
// webhook delivery leaves the order pending while the processor already
// settled (or abandoned) the session; the gateway is the source of truth,
// so the sweep asks it and applies the transition the webhook would have.
type ReconciliationWorker struct {
	db         *sql.DB
	orderRepo  repo.OrderRepo
	gateway    payment.Gateway
	webhookSvc service.WebhookService
	cutoff     time.Duration
	interval   time.Duration
	logger     *zap.Logger
}

func NewReconciliationWorker(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	gateway payment.Gateway,
	webhookSvc service.WebhookService,
	cutoff time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		db:         db,
		orderRepo:  orderRepo,
		gateway:    gateway,
		webhookSvc: webhookSvc,
		cutoff:     cutoff,
		interval:   interval,
		logger:     logger,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started",
		zap.Duration("interval", rw.interval),
		zap.Duration("cutoff", rw.cutoff))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if err := rw.process(ctx); err != nil {
				rw.logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

func (rw *ReconciliationWorker) process(ctx context.Context) error {
	stuck, err := rw.orderRepo.FindStuckPending(ctx, rw.cutoff, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	rw.logger.Info("found stuck pending orders", zap.Int("count", len(stuck)))

	for _, order := range stuck {
		sess, err := rw.gateway.RetrieveSession(ctx, order.ExternalSessionID,
			"customer_details", "shipping_details", "payment_intent")
		if err != nil {
			// Leave it for the next sweep.
			rw.logger.Warn("failed to check session status",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			continue
		}

		if sess.PaymentStatus == "paid" {
			rw.logger.Info("stuck order was settled by processor, fixing to paid",
				zap.String("order_id", order.OrderID))
			if err := rw.webhookSvc.SettleFromSession(ctx, &order, sess); err != nil {
				rw.logger.Error("failed to settle stuck order",
					zap.String("order_id", order.OrderID),
					zap.Error(err))
				continue
			}
			metrics.ReconciledOrdersTotal.WithLabelValues("paid").Inc()
			continue
		}

		// Abandoned session: close the order out.
		if err := rw.markFailed(ctx, order.OrderID); err != nil {
			rw.logger.Error("failed to mark abandoned order",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			continue
		}
		rw.logger.Info("abandoned order marked failed",
			zap.String("order_id", order.OrderID))
		metrics.ReconciledOrdersTotal.WithLabelValues("failed").Inc()
	}
	return nil
}

func (rw *ReconciliationWorker) markFailed(ctx context.Context, orderID string) error {
	tx, err := rw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := rw.orderRepo.MarkFailedFromPending(ctx, tx, orderID, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
