package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order. The set is closed;
// transitions go through CanTransitionTo rather than ad-hoc comparisons.
type OrderStatus string

const (
	StatusDraft               OrderStatus = "DRAFT"
	StatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"
	StatusLookingForDriver    OrderStatus = "LOOKING_FOR_DRIVER"
	StatusOnProcess           OrderStatus = "ON_PROCESS"
	StatusBillValidation      OrderStatus = "BILL_VALIDATION"
	StatusBillSent            OrderStatus = "BILL_SENT"
	StatusCompleted           OrderStatus = "COMPLETED"
	StatusCancelled           OrderStatus = "CANCELLED"
)

// orderTransitions maps each status to the statuses it may move to.
// COMPLETED and CANCELLED are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusDraft:               {StatusPendingConfirmation, StatusLookingForDriver, StatusCancelled},
	StatusPendingConfirmation: {StatusDraft, StatusLookingForDriver, StatusCancelled},
	StatusLookingForDriver:    {StatusOnProcess, StatusCancelled},
	StatusOnProcess:           {StatusBillValidation, StatusCancelled},
	StatusBillValidation:      {StatusBillSent, StatusCancelled},
	StatusBillSent:            {StatusCompleted, StatusCancelled},
	StatusCompleted:           {},
	StatusCancelled:           {},
}

// IsTerminal reports whether s is a terminal status.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether a move from s to target is allowed.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// CancellableStatuses are the pre-assignment statuses the auto-cancel
// scheduler is allowed to sweep.
var CancellableStatuses = []OrderStatus{StatusDraft, StatusPendingConfirmation, StatusLookingForDriver}

// Order represents a delivery order.
type Order struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Code          string    `json:"code" db:"code"`
	CustomerPhone string    `json:"customerPhone" db:"customer_phone"`
	CourierID     *int64    `json:"courierId,omitempty" db:"courier_id"`

	PickupAddress   string   `json:"pickupAddress" db:"pickup_address"`
	PickupLat       *float64 `json:"pickupLat,omitempty" db:"pickup_lat"`
	PickupLng       *float64 `json:"pickupLng,omitempty" db:"pickup_lng"`
	DeliveryAddress string   `json:"deliveryAddress" db:"delivery_address"`
	DeliveryLat     *float64 `json:"deliveryLat,omitempty" db:"delivery_lat"`
	DeliveryLng     *float64 `json:"deliveryLng,omitempty" db:"delivery_lng"`

	// TotalAmount is in integer currency units (rupiah); mutable until the
	// bill is finalized.
	TotalAmount int64   `json:"totalAmount" db:"total_amount"`
	EvidenceRef *string `json:"evidenceRef,omitempty" db:"evidence_ref"`

	// Dispatch bookkeeping. OfferedCourierIDs is append-only between
	// resets; the pair of fields together defines the active offer.
	OfferedCourierIDs []int64    `json:"offeredCourierIds" db:"offered_courier_ids"`
	LastOfferedAt     *time.Time `json:"lastOfferedAt,omitempty" db:"last_offered_at"`

	Status      OrderStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
	CompletedAt *time.Time  `json:"completedAt,omitempty" db:"completed_at"`

	Items []OrderItem `json:"items" db:"-"`
}

// OrderItem is a single line item on an order.
type OrderItem struct {
	ID       uuid.UUID `json:"-" db:"id"`
	OrderID  uuid.UUID `json:"-" db:"order_id"`
	Name     string    `json:"name" db:"name"`
	Quantity int       `json:"quantity" db:"quantity"`
	Note     string    `json:"note,omitempty" db:"note"`
	Position int       `json:"-" db:"position"`
}

// HasPickupCoords reports whether the order carries pickup coordinates.
// Dispatch is gated on pickup coordinates only; delivery coordinates stay
// optional all the way to completion.
func (o *Order) HasPickupCoords() bool {
	return o.PickupLat != nil && o.PickupLng != nil
}

// HasDeliveryCoords reports whether the order carries delivery coordinates.
func (o *Order) HasDeliveryCoords() bool {
	return o.DeliveryLat != nil && o.DeliveryLng != nil
}

// OfferedTo reports whether courierID already received an offer for this
// order in the current exclusion window.
func (o *Order) OfferedTo(courierID int64) bool {
	for _, id := range o.OfferedCourierIDs {
		if id == courierID {
			return true
		}
	}
	return false
}

// OfferExpired reports whether the most recent offer has outlived the
// timeout. An order with no offer yet is not considered expired.
func (o *Order) OfferExpired(now time.Time, timeout time.Duration) bool {
	return o.LastOfferedAt != nil && now.Sub(*o.LastOfferedAt) >= timeout
}

// OfferPending reports whether a courier still holds first refusal on the
// order, i.e. the last offer is younger than the timeout.
func (o *Order) OfferPending(now time.Time, timeout time.Duration) bool {
	return o.LastOfferedAt != nil && now.Sub(*o.LastOfferedAt) < timeout
}
