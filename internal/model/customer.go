package model

import "time"

// Customer represents a customer, keyed by their canonical phone number.
type Customer struct {
	ID    int64  `json:"id" db:"id"`
	Phone string `json:"phone" db:"phone"`
	Name  string `json:"name" db:"name"`

	// HasSharedLocation is set the first time the customer shares device
	// coordinates and feeds draft completeness from then on.
	HasSharedLocation bool     `json:"hasSharedLocation" db:"has_shared_location"`
	Lat               *float64 `json:"lat,omitempty" db:"lat"`
	Lng               *float64 `json:"lng,omitempty" db:"lng"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
