package repository

import (
	"context"
	"time"

	"antarin/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts a new order together with its line items.
	Create(ctx context.Context, order *model.Order) error

	// GetByID retrieves an order with its items. Returns nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByCode retrieves an order by its short human-friendly code.
	GetByCode(ctx context.Context, code string) (*model.Order, error)

	// GetActiveByCustomer retrieves the customer's most recent
	// non-terminal order, or nil when there is none.
	GetActiveByCustomer(ctx context.Context, phone string) (*model.Order, error)

	// GetForUpdate retrieves an order inside tx under an exclusive row
	// lock. Items are not loaded.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus moves the order to the given status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error

	// UpdateDraftFields overwrites the draft-editable fields (addresses,
	// coordinates) and replaces the item list.
	UpdateDraftFields(ctx context.Context, order *model.Order) error

	// SetPickupCoords sets the pickup coordinates.
	SetPickupCoords(ctx context.Context, id uuid.UUID, lat, lng float64) error

	// AppendOffer appends courierID to the offered list and stamps
	// last_offered_at.
	AppendOffer(ctx context.Context, id uuid.UUID, courierID int64, at time.Time) error

	// ResetOffers clears the offered list so previously offered couriers
	// become eligible again. last_offered_at is left untouched.
	ResetOffers(ctx context.Context, id uuid.UUID) error

	// SetBill records the draft bill amount and evidence reference.
	SetBill(ctx context.Context, id uuid.UUID, amount int64, evidenceRef *string) error

	// MarkAssigned sets ON_PROCESS and the courier inside tx.
	MarkAssigned(ctx context.Context, tx pgx.Tx, id uuid.UUID, courierID int64) error

	// MarkCompleted sets COMPLETED and stamps completed_at inside tx.
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// MarkCancelled sets CANCELLED and clears the courier inside tx.
	MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// ListDispatchable returns orders in LOOKING_FOR_DRIVER with pickup
	// coordinates whose last offer is absent or older than staleBefore.
	ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Order, error)

	// ListStale returns up to limit orders in pre-assignment statuses
	// created before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
}

// CourierRepository defines the interface for courier data access operations.
type CourierRepository interface {
	// GetByID retrieves a courier. Returns nil when absent.
	GetByID(ctx context.Context, id int64) (*model.Courier, error)

	// GetByPhone retrieves a courier by canonical phone. Returns nil when
	// absent.
	GetByPhone(ctx context.Context, phone string) (*model.Courier, error)

	// GetForUpdate retrieves a courier inside tx under an exclusive row lock.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Courier, error)

	// SetStatus moves the courier to the given status.
	SetStatus(ctx context.Context, id int64, status model.CourierStatus) error

	// SetStatusTx moves the courier to the given status inside tx.
	SetStatusTx(ctx context.Context, tx pgx.Tx, id int64, status model.CourierStatus) error

	// UpdateLocation sets the courier position and refreshes last_active_at.
	UpdateLocation(ctx context.Context, id int64, lat, lng float64) error

	// ListEligible returns active, idle, coordinate-equipped couriers on
	// the given shift, in insertion order.
	ListEligible(ctx context.Context, shiftCode int) ([]*model.Courier, error)

	// ListReadyIDs returns the ids of all couriers that count as online
	// in the durable store: idle, active and coordinate-equipped.
	ListReadyIDs(ctx context.Context) ([]int64, error)
}

// CustomerRepository defines the interface for customer data access operations.
type CustomerRepository interface {
	// GetByPhone retrieves a customer by canonical phone. Returns nil
	// when absent.
	GetByPhone(ctx context.Context, phone string) (*model.Customer, error)

	// Upsert creates the customer on first contact or returns the
	// existing record.
	Upsert(ctx context.Context, phone, name string) (*model.Customer, error)

	// SetLocation stores the shared device coordinates and flips the
	// durable has_shared_location flag.
	SetLocation(ctx context.Context, phone string, lat, lng float64) error
}
