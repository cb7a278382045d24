package model

import "time"

// CourierStatus is the availability state of a courier.
type CourierStatus string

const (
	CourierOffline CourierStatus = "OFFLINE"
	CourierIdle    CourierStatus = "IDLE"
	CourierBusy    CourierStatus = "BUSY"
	CourierSuspend CourierStatus = "SUSPEND"
)

func (s CourierStatus) String() string {
	return string(s)
}

// Courier represents a delivery courier.
type Courier struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Phone string `json:"phone" db:"phone"`

	// ShiftCode assigns the courier to one of the fixed daily serving
	// windows; couriers outside their window never receive offers.
	ShiftCode int           `json:"shiftCode" db:"shift_code"`
	Status    CourierStatus `json:"status" db:"status"`
	IsActive  bool          `json:"isActive" db:"is_active"`

	Lat *float64 `json:"lat,omitempty" db:"lat"`
	Lng *float64 `json:"lng,omitempty" db:"lng"`

	LastActiveAt *time.Time `json:"lastActiveAt,omitempty" db:"last_active_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasCoords reports whether the courier has a known position.
func (c *Courier) HasCoords() bool {
	return c.Lat != nil && c.Lng != nil
}

// Offerable reports whether the courier can receive new offers at all:
// idle, active and position known. Shift and presence checks are applied
// by the dispatch engine on top of this.
func (c *Courier) Offerable() bool {
	return c.Status == CourierIdle && c.IsActive && c.HasCoords()
}
