package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"antarin/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `id, code, customer_phone, courier_id,
	pickup_address, pickup_lat, pickup_lng,
	delivery_address, delivery_lat, delivery_lng,
	total_amount, evidence_ref,
	offered_courier_ids, last_offered_at,
	status, created_at, updated_at, completed_at`

// orderRepository implements OrderRepository using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Create inserts a new order together with its line items.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (id, code, customer_phone,
			pickup_address, pickup_lat, pickup_lng,
			delivery_address, delivery_lat, delivery_lng,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`

	_, err = tx.Exec(ctx, query,
		order.ID, order.Code, order.CustomerPhone,
		order.PickupAddress, order.PickupLat, order.PickupLng,
		order.DeliveryAddress, order.DeliveryLat, order.DeliveryLng,
		order.Status, order.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to insert order")
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := r.insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order insert: %w", err)
	}

	r.logger.Debug().Str("order_id", order.ID.String()).Str("code", order.Code).Msg("order created")
	return nil
}

func (r *orderRepository) insertItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, name, quantity, note, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for i, item := range items {
		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query, id, orderID, item.Name, item.Quantity, item.Note, i)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to insert order item")
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil || order == nil {
		return order, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetByCode retrieves an order by its short human-friendly code.
func (r *orderRepository) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE code = $1`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, code))
	if err != nil || order == nil {
		return order, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetActiveByCustomer retrieves the customer's most recent non-terminal order.
func (r *orderRepository) GetActiveByCustomer(ctx context.Context, phone string) (*model.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_phone = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, phone, model.StatusCompleted, model.StatusCancelled))
	if err != nil || order == nil {
		return order, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetForUpdate retrieves an order inside tx under an exclusive row lock.
func (r *orderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOrder(tx.QueryRow(ctx, query, id))
}

// UpdateStatus moves the order to the given status.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Str("status", status.String()).Msg("failed to update order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	r.logger.Debug().Str("order_id", id.String()).Str("status", status.String()).Msg("order status updated")
	return nil
}

// UpdateDraftFields overwrites the draft-editable fields and replaces the items.
func (r *orderRepository) UpdateDraftFields(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET pickup_address = $1, pickup_lat = $2, pickup_lng = $3,
		    delivery_address = $4, delivery_lat = $5, delivery_lng = $6,
		    updated_at = NOW()
		WHERE id = $7
	`

	tag, err := tx.Exec(ctx, query,
		order.PickupAddress, order.PickupLat, order.PickupLng,
		order.DeliveryAddress, order.DeliveryLat, order.DeliveryLng,
		order.ID,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to update draft fields")
		return fmt.Errorf("failed to update draft fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("failed to clear order items: %w", err)
	}
	if err := r.insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetPickupCoords sets the pickup coordinates.
func (r *orderRepository) SetPickupCoords(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	query := `UPDATE orders SET pickup_lat = $1, pickup_lng = $2, updated_at = NOW() WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, lat, lng, id)
	if err != nil {
		return fmt.Errorf("failed to set pickup coordinates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

// AppendOffer appends courierID to the offered list and stamps last_offered_at.
func (r *orderRepository) AppendOffer(ctx context.Context, id uuid.UUID, courierID int64, at time.Time) error {
	query := `
		UPDATE orders
		SET offered_courier_ids = array_append(offered_courier_ids, $1),
		    last_offered_at = $2,
		    updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, courierID, at, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Int64("courier_id", courierID).Msg("failed to append offer")
		return fmt.Errorf("failed to append offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	r.logger.Debug().Str("order_id", id.String()).Int64("courier_id", courierID).Msg("offer recorded")
	return nil
}

// ResetOffers clears the offered list.
func (r *orderRepository) ResetOffers(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE orders SET offered_courier_ids = '{}', updated_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset offers: %w", err)
	}
	return nil
}

// SetBill records the draft bill amount and evidence reference.
func (r *orderRepository) SetBill(ctx context.Context, id uuid.UUID, amount int64, evidenceRef *string) error {
	query := `
		UPDATE orders
		SET total_amount = $1, evidence_ref = COALESCE($2, evidence_ref), updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, amount, evidenceRef, id)
	if err != nil {
		return fmt.Errorf("failed to set bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

// MarkAssigned sets ON_PROCESS and the courier inside tx.
func (r *orderRepository) MarkAssigned(ctx context.Context, tx pgx.Tx, id uuid.UUID, courierID int64) error {
	query := `
		UPDATE orders
		SET status = $1, courier_id = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := tx.Exec(ctx, query, model.StatusOnProcess, courierID, id); err != nil {
		return fmt.Errorf("failed to mark order assigned: %w", err)
	}
	return nil
}

// MarkCompleted sets COMPLETED and stamps completed_at inside tx.
func (r *orderRepository) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, query, model.StatusCompleted, id); err != nil {
		return fmt.Errorf("failed to mark order completed: %w", err)
	}
	return nil
}

// MarkCancelled sets CANCELLED and clears the courier inside tx.
func (r *orderRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, courier_id = NULL, updated_at = NOW()
		WHERE id = $2
	`

	if _, err := tx.Exec(ctx, query, model.StatusCancelled, id); err != nil {
		return fmt.Errorf("failed to mark order cancelled: %w", err)
	}
	return nil
}

// ListDispatchable returns orders awaiting a (re-)offer.
func (r *orderRepository) ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		  AND pickup_lat IS NOT NULL AND pickup_lng IS NOT NULL
		  AND (last_offered_at IS NULL OR last_offered_at < $2)
		ORDER BY created_at
		LIMIT $3
	`

	return r.queryOrders(ctx, query, model.StatusLookingForDriver, staleBefore, limit)
}

// ListStale returns up to limit pre-assignment orders created before cutoff.
func (r *orderRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = ANY($1)
		  AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`

	statuses := make([]string, len(model.CancellableStatuses))
	for i, s := range model.CancellableStatuses {
		statuses[i] = s.String()
	}

	return r.queryOrders(ctx, query, statuses, cutoff, limit)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *model.Order) error {
	query := `
		SELECT id, order_id, name, quantity, note, position
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, order.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to query order items")
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &item.Quantity, &item.Note, &item.Position); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *orderRepository) scanOrder(row pgx.Row) (*model.Order, error) {
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to scan order")
		return nil, err
	}
	return order, nil
}

func scanOrderRow(row pgx.Row) (*model.Order, error) {
	var order model.Order
	err := row.Scan(
		&order.ID, &order.Code, &order.CustomerPhone, &order.CourierID,
		&order.PickupAddress, &order.PickupLat, &order.PickupLng,
		&order.DeliveryAddress, &order.DeliveryLat, &order.DeliveryLng,
		&order.TotalAmount, &order.EvidenceRef,
		&order.OfferedCourierIDs, &order.LastOfferedAt,
		&order.Status, &order.CreatedAt, &order.UpdatedAt, &order.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &order, nil
}
