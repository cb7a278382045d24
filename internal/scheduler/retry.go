package scheduler

import (
	"context"
	"time"

	"antarin/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher is the dispatch entry point the retry worker drives.
type Dispatcher interface {
	FindCourierForOrder(ctx context.Context, orderID uuid.UUID) error
}

// DispatchableLister lists orders waiting for a courier with no live offer.
type DispatchableLister interface {
	ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Order, error)
}

// RetryWorker periodically re-runs dispatch for orders that are still
// LOOKING_FOR_DRIVER with no live offer: either nobody was ever offered
// or the last offer timed out unanswered.
type RetryWorker struct {
	orders       DispatchableLister
	dispatcher   Dispatcher
	interval     time.Duration
	offerTimeout time.Duration
	batchSize    int
	now          func() time.Time
	logger       zerolog.Logger
}

func NewRetryWorker(
	orders DispatchableLister,
	dispatcher Dispatcher,
	interval time.Duration,
	offerTimeout time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *RetryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RetryWorker{
		orders:       orders,
		dispatcher:   dispatcher,
		interval:     interval,
		offerTimeout: offerTimeout,
		batchSize:    batchSize,
		now:          time.Now,
		logger:       logger.With().Str("component", "retry_worker").Logger(),
	}
}

// Start runs the worker in its own goroutine until ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.processBatch(ctx); err != nil {
					w.logger.Error().Err(err).Msg("retry batch failed")
				}
			}
		}
	}()
}

// Sweep runs one retry pass immediately, outside the ticker. A courier
// coming back online uses it to pick up waiting orders without delay.
func (w *RetryWorker) Sweep(ctx context.Context) error {
	return w.processBatch(ctx)
}

func (w *RetryWorker) processBatch(ctx context.Context) error {
	staleBefore := w.now().Add(-w.offerTimeout)
	orders, err := w.orders.ListDispatchable(ctx, staleBefore, w.batchSize)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	w.logger.Debug().Int("count", len(orders)).Msg("retrying courier search")

	for _, order := range orders {
		// One broken order must not starve the rest of the batch.
		if err := w.dispatchOne(ctx, order); err != nil {
			w.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Str("order_code", order.Code).
				Msg("dispatch retry failed")
		}
	}
	return nil
}

func (w *RetryWorker) dispatchOne(ctx context.Context, order *model.Order) error {
	return w.dispatcher.FindCourierForOrder(ctx, order.ID)
}
