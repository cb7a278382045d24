package repository

import (
	"context"
	"errors"
	"fmt"

	"antarin/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const courierColumns = `id, name, phone, shift_code, status, is_active,
	lat, lng, last_active_at, created_at, updated_at`

// courierRepository implements CourierRepository using PostgreSQL.
type courierRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCourierRepository creates a new PostgreSQL-backed courier repository.
func NewCourierRepository(pool *pgxpool.Pool, logger zerolog.Logger) CourierRepository {
	return &courierRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "courier").Logger(),
	}
}

// GetByID retrieves a courier by id.
func (r *courierRepository) GetByID(ctx context.Context, id int64) (*model.Courier, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1`
	return r.scanCourier(r.pool.QueryRow(ctx, query, id))
}

// GetByPhone retrieves a courier by canonical phone.
func (r *courierRepository) GetByPhone(ctx context.Context, phone string) (*model.Courier, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE phone = $1`
	return r.scanCourier(r.pool.QueryRow(ctx, query, phone))
}

// GetForUpdate retrieves a courier inside tx under an exclusive row lock.
func (r *courierRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Courier, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1 FOR UPDATE`
	return r.scanCourier(tx.QueryRow(ctx, query, id))
}

// SetStatus moves the courier to the given status.
func (r *courierRepository) SetStatus(ctx context.Context, id int64, status model.CourierStatus) error {
	query := `UPDATE couriers SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error().Err(err).Int64("courier_id", id).Str("status", status.String()).Msg("failed to set courier status")
		return fmt.Errorf("failed to set courier status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDomainError(model.ErrCodeNotFound, "courier not found")
	}

	r.logger.Debug().Int64("courier_id", id).Str("status", status.String()).Msg("courier status updated")
	return nil
}

// SetStatusTx moves the courier to the given status inside tx.
func (r *courierRepository) SetStatusTx(ctx context.Context, tx pgx.Tx, id int64, status model.CourierStatus) error {
	query := `UPDATE couriers SET status = $1, updated_at = NOW() WHERE id = $2`

	if _, err := tx.Exec(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to set courier status: %w", err)
	}
	return nil
}

// UpdateLocation sets the courier position and refreshes last_active_at.
func (r *courierRepository) UpdateLocation(ctx context.Context, id int64, lat, lng float64) error {
	query := `
		UPDATE couriers
		SET lat = $1, lng = $2, last_active_at = NOW(), updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, lat, lng, id)
	if err != nil {
		r.logger.Error().Err(err).Int64("courier_id", id).Msg("failed to update courier location")
		return fmt.Errorf("failed to update courier location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDomainError(model.ErrCodeNotFound, "courier not found")
	}
	return nil
}

// ListEligible returns active, idle, coordinate-equipped couriers on the
// given shift, in insertion order.
func (r *courierRepository) ListEligible(ctx context.Context, shiftCode int) ([]*model.Courier, error) {
	query := `
		SELECT ` + courierColumns + `
		FROM couriers
		WHERE status = $1
		  AND is_active = TRUE
		  AND shift_code = $2
		  AND lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, model.CourierIdle, shiftCode)
	if err != nil {
		r.logger.Error().Err(err).Int("shift_code", shiftCode).Msg("failed to query eligible couriers")
		return nil, fmt.Errorf("failed to query eligible couriers: %w", err)
	}
	defer rows.Close()

	var couriers []*model.Courier
	for rows.Next() {
		courier, err := scanCourierRow(rows)
		if err != nil {
			return nil, err
		}
		couriers = append(couriers, courier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating couriers: %w", err)
	}
	return couriers, nil
}

// ListReadyIDs returns the ids of couriers that count as online in the
// durable store.
func (r *courierRepository) ListReadyIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT id FROM couriers
		WHERE status = $1
		  AND is_active = TRUE
		  AND lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, model.CourierIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to query ready couriers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan courier id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *courierRepository) scanCourier(row pgx.Row) (*model.Courier, error) {
	courier, err := scanCourierRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to scan courier")
		return nil, err
	}
	return courier, nil
}

func scanCourierRow(row pgx.Row) (*model.Courier, error) {
	var c model.Courier
	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.ShiftCode, &c.Status, &c.IsActive,
		&c.Lat, &c.Lng, &c.LastActiveAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan courier: %w", err)
	}
	return &c, nil
}
