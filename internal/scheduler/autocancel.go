package scheduler

import (
	"context"
	"fmt"
	"time"

	"antarin/internal/gateway"
	"antarin/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StaleLister lists non-terminal orders older than a cutoff.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
}

// OrderCanceller is the cancellation entry point the auto-cancel worker
// drives. Cancelling through the service keeps courier release and
// transition rules in one place.
type OrderCanceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) error
}

// AutoCancelWorker sweeps orders stuck in a non-terminal state past the
// maximum age and cancels them, telling the customer what happened.
type AutoCancelWorker struct {
	orders    StaleLister
	canceller OrderCanceller
	messenger gateway.Messenger
	interval  time.Duration
	maxAge    time.Duration
	batchSize int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewAutoCancelWorker(
	orders StaleLister,
	canceller OrderCanceller,
	messenger gateway.Messenger,
	interval time.Duration,
	maxAge time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *AutoCancelWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AutoCancelWorker{
		orders:    orders,
		canceller: canceller,
		messenger: messenger,
		interval:  interval,
		maxAge:    maxAge,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.With().Str("component", "autocancel_worker").Logger(),
	}
}

// Start runs the worker in its own goroutine until ctx is cancelled.
func (w *AutoCancelWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.processBatch(ctx); err != nil {
					w.logger.Error().Err(err).Msg("auto-cancel batch failed")
				}
			}
		}
	}()
}

func (w *AutoCancelWorker) processBatch(ctx context.Context) error {
	cutoff := w.now().Add(-w.maxAge)
	orders, err := w.orders.ListStale(ctx, cutoff, w.batchSize)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	w.logger.Info().Int("count", len(orders)).Msg("cancelling expired orders")

	for _, order := range orders {
		if err := w.cancelOne(ctx, order); err != nil {
			w.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Str("order_code", order.Code).
				Msg("auto-cancel failed")
		}
	}
	return nil
}

func (w *AutoCancelWorker) cancelOne(ctx context.Context, order *model.Order) error {
	if err := w.canceller.Cancel(ctx, order.ID, "expired"); err != nil {
		return err
	}

	w.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_code", order.Code).
		Str("status", string(order.Status)).
		Msg("order auto-cancelled")

	body := fmt.Sprintf("Pesanan %s dibatalkan otomatis karena sudah lebih dari %d jam tanpa penyelesaian. Silakan buat pesanan baru jika masih dibutuhkan.", order.Code, int(w.maxAge.Hours()))
	if err := w.messenger.SendText(ctx, order.CustomerPhone, body); err != nil {
		// The cancellation already stuck; the message is best effort.
		w.logger.Warn().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("auto-cancel notice failed to send")
	}
	return nil
}
