package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/academy-api/pkg/logger"
)

type DiscountExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

type SendLogPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxPruner interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceWorker expires lapsed discounts and prunes old send-log rows.
type MaintenanceWorker struct {
	discounts DiscountExpirer
	sendLog   SendLogPruner
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time

	outbox          OutboxPruner
	outboxRetention time.Duration
}

func NewMaintenanceWorker(discounts DiscountExpirer, sendLog SendLogPruner, retention, interval time.Duration, logger *logger.Logger) *MaintenanceWorker {
	return &MaintenanceWorker{
		discounts: discounts,
		sendLog:   sendLog,
		retention: retention,
		interval:  interval,
		logger:    logger.With("maintenance"),
		now:       time.Now,
	}
}

func (w *MaintenanceWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting maintenance worker", "interval", w.interval.String())
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error(err, "maintenance run failed")
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down maintenance worker")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				// Log error but continue
				w.logger.Error(err, "maintenance run failed")
			}
		}
	}
}

// WithOutboxPruning also deletes outbox events published more than
// retention ago.
func (w *MaintenanceWorker) WithOutboxPruning(outbox OutboxPruner, retention time.Duration) *MaintenanceWorker {
	w.outbox = outbox
	w.outboxRetention = retention
	return w
}

// RunOnce performs every job; a failure in one does not skip the rest.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) error {
	var errs []error

	expired, err := w.discounts.ExpireDue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to expire discounts: %w", err))
	}

	var pruned int64
	if w.retention > 0 {
		cutoff := w.now().Add(-w.retention)
		pruned, err = w.sendLog.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to prune send log: %w", err))
		}
	}

	var outboxPruned int64
	if w.outbox != nil && w.outboxRetention > 0 {
		outboxPruned, err = w.outbox.DeleteProcessedBefore(ctx, w.now().Add(-w.outboxRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to prune outbox: %w", err))
		}
	}

	w.logger.Debug("maintenance run finished",
		"discounts_expired", expired, "send_log_pruned", pruned, "outbox_pruned", outboxPruned)
	return errors.Join(errs...)
}
