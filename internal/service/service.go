package service

import (
	"context"

	"antarin/internal/model"

	"github.com/google/uuid"
)

// OrderService defines the order lifecycle operations. All state changes
// funnel through here so the transition rules live in one place.
type OrderService interface {
	// CreateDraft creates a DRAFT order for the customer from the
	// accumulated draft session.
	CreateDraft(ctx context.Context, draft *model.DraftOrder) (*model.Order, error)

	// SyncDraft overwrites the order's draft-editable fields from the
	// session draft.
	SyncDraft(ctx context.Context, orderID uuid.UUID, draft *model.DraftOrder) error

	// MarkPendingConfirmation moves a DRAFT order to PENDING_CONFIRMATION.
	MarkPendingConfirmation(ctx context.Context, orderID uuid.UUID) error

	// Confirm validates the order and moves it to LOOKING_FOR_DRIVER.
	// Missing items or addresses are rejected with a field-specific
	// error. Coordinates are not required here; they gate dispatch only.
	Confirm(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// Assign gives the order to the courier under an exclusive row lock.
	// The loser of a race gets model.ErrOrderTaken, never a silent
	// failure. The courier goes BUSY in the same transaction.
	Assign(ctx context.Context, orderID uuid.UUID, courierID int64) (*model.Order, error)

	// RecordBillDraft stores the bill amount and evidence reference and
	// moves an ON_PROCESS order to BILL_VALIDATION. The amount stays
	// mutable until the bill is finalized.
	RecordBillDraft(ctx context.Context, orderID uuid.UUID, amount int64, evidenceRef *string) (*model.Order, error)

	// FinalizeBill moves BILL_VALIDATION to BILL_SENT. Returns nil
	// without error when the order is not awaiting finalization.
	FinalizeBill(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// Complete marks the order delivered, stamps completed_at and
	// releases the courier back to IDLE in the same transaction.
	Complete(ctx context.Context, orderID uuid.UUID, courierID int64) (*model.Order, error)

	// Cancel cancels the order and releases any held courier. Cancelling
	// an already-cancelled order is a no-op.
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) error

	// GetByID retrieves an order. Returns nil when absent.
	GetByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// GetByCode retrieves an order by its short code. Returns nil when absent.
	GetByCode(ctx context.Context, code string) (*model.Order, error)

	// GetActiveByCustomer retrieves the customer's current non-terminal
	// order. Returns nil when there is none.
	GetActiveByCustomer(ctx context.Context, phone string) (*model.Order, error)
}
