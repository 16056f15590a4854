package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iorderqueue"
	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Worker republishes orders that stayed pending for too long, covering the gap between
// a committed insert and a failed publish. Each order is republished at most once per
// stale interval; the duplicates that remain are harmless to the consumer.
type Worker struct {
	orderRepo  iorderrepo.IOrderRepository
	queue      iorderqueue.IOrderQueue
	cron       *cron.Cron
	schedule   string
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
	cancel     context.CancelFunc
}

// NewWorker creates a new reconciliation worker.
func NewWorker(orderRepo iorderrepo.IOrderRepository, queue iorderqueue.IOrderQueue) *Worker {
	schedule := viper.GetString("reconciler.schedule")
	if schedule == "" {
		schedule = "@every 1m"
	}

	staleAfter := viper.GetDuration("reconciler.stale_after")
	if staleAfter == 0 {
		staleAfter = 5 * time.Minute
	}

	batchSize := viper.GetInt("reconciler.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	return &Worker{
		orderRepo:  orderRepo,
		queue:      queue,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule:   schedule,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Start schedules the sweep. It returns an error if the schedule cannot be parsed.
func (w *Worker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	_, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
		}
	})
	if err != nil {
		w.cancel()

		return fmt.Errorf("failed to schedule reconciliation sweep %q: %w", w.schedule, err)
	}

	w.cron.Start()
	slog.Info("Reconciliation worker started",
		"schedule", w.schedule,
		"stale_after", w.staleAfter,
		"batch_size", w.batchSize,
	)

	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.cron.Stop().Done()
	slog.Info("Reconciliation worker stopped")
}

// RunOnce republishes one batch of stale pending orders and returns how many were sent.
// An order is sent again only after staleAfter has passed since its previous republish.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	cutoff := now.Add(-w.staleAfter)

	orders, err := w.orderRepo.ListStale(ctx, order.QueryStaleModel{
		Status:            order.StatusPending,
		CreatedBefore:     cutoff,
		RepublishedBefore: cutoff,
		Limit:             w.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}

	if len(orders) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Republishing stale pending orders", "count", len(orders))

	sent := 0
	for _, o := range orders {
		if err := w.queue.Publish(ctx, o.ID); err != nil {
			slog.WarnContext(ctx, "Failed to republish order", "order_id", o.ID, "error", err)

			continue
		}
		sent++

		if err := w.orderRepo.MarkRepublished(ctx, o.ID, now); err != nil {
			slog.WarnContext(ctx, "Failed to mark order republished", "order_id", o.ID, "error", err)
		}
	}

	return sent, nil
}
