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

const customerColumns = `id, phone, name, has_shared_location, lat, lng, created_at, updated_at`

// customerRepository implements CustomerRepository using PostgreSQL.
type customerRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCustomerRepository creates a new PostgreSQL-backed customer repository.
func NewCustomerRepository(pool *pgxpool.Pool, logger zerolog.Logger) CustomerRepository {
	return &customerRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "customer").Logger(),
	}
}

// GetByPhone retrieves a customer by canonical phone.
func (r *customerRepository) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1`

	customer, err := scanCustomerRow(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("phone", phone).Msg("failed to query customer")
		return nil, err
	}
	return customer, nil
}

// Upsert creates the customer on first contact or returns the existing record.
func (r *customerRepository) Upsert(ctx context.Context, phone, name string) (*model.Customer, error) {
	query := `
		INSERT INTO customers (phone, name)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
		    updated_at = NOW()
		RETURNING ` + customerColumns

	customer, err := scanCustomerRow(r.pool.QueryRow(ctx, query, phone, name))
	if err != nil {
		r.logger.Error().Err(err).Str("phone", phone).Msg("failed to upsert customer")
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	return customer, nil
}

// SetLocation stores the shared device coordinates and flips the durable
// has_shared_location flag.
func (r *customerRepository) SetLocation(ctx context.Context, phone string, lat, lng float64) error {
	query := `
		UPDATE customers
		SET lat = $1, lng = $2, has_shared_location = TRUE, updated_at = NOW()
		WHERE phone = $3
	`

	tag, err := r.pool.Exec(ctx, query, lat, lng, phone)
	if err != nil {
		r.logger.Error().Err(err).Str("phone", phone).Msg("failed to set customer location")
		return fmt.Errorf("failed to set customer location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDomainError(model.ErrCodeNotFound, "customer not found")
	}
	return nil
}

func scanCustomerRow(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.HasSharedLocation, &c.Lat, &c.Lng, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	return &c, nil
}
