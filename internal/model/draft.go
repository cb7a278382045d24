package model

import "time"

const (
	minPickupLen   = 3
	minDeliveryLen = 4
)

// DraftOrder is the ephemeral per-customer draft accumulated across
// conversation turns. It lives in the session store, keyed by customer
// phone, and is distinct from an Order row in DRAFT status: the two
// lifecycles only join at confirmation.
type DraftOrder struct {
	CustomerPhone string      `json:"customerPhone"`
	Items         []OrderItem `json:"items"`

	PickupAddress   string   `json:"pickupAddress"`
	PickupLat       *float64 `json:"pickupLat,omitempty"`
	PickupLng       *float64 `json:"pickupLng,omitempty"`
	DeliveryAddress string   `json:"deliveryAddress"`
	DeliveryLat     *float64 `json:"deliveryLat,omitempty"`
	DeliveryLng     *float64 `json:"deliveryLng,omitempty"`

	// HasCoordinate marks a location shared during this draft session,
	// independent of the durable customer flag.
	HasCoordinate bool `json:"hasCoordinate"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Merge layers a newly parsed fragment over the draft, field by field.
// Non-empty incoming fields override; empty ones keep the previous value.
// An incoming item list replaces the old one entirely, an empty one keeps
// the old list.
func (d *DraftOrder) Merge(in *DraftOrder) {
	if in == nil {
		return
	}
	if len(in.Items) > 0 {
		d.Items = in.Items
	}
	if in.PickupAddress != "" {
		d.PickupAddress = in.PickupAddress
	}
	if in.PickupLat != nil && in.PickupLng != nil {
		d.PickupLat = in.PickupLat
		d.PickupLng = in.PickupLng
	}
	if in.DeliveryAddress != "" {
		d.DeliveryAddress = in.DeliveryAddress
	}
	if in.DeliveryLat != nil && in.DeliveryLng != nil {
		d.DeliveryLat = in.DeliveryLat
		d.DeliveryLng = in.DeliveryLng
	}
	if in.HasCoordinate {
		d.HasCoordinate = true
	}
}

// Complete reports whether the draft has enough to ask the customer for
// final confirmation. customerShared is the durable has-shared-location
// flag on the customer record; a location shared in this session counts
// too. Completeness gates the confirmation prompt only, never dispatch.
func (d *DraftOrder) Complete(customerShared bool) bool {
	return len(d.Items) > 0 &&
		len(d.PickupAddress) >= minPickupLen &&
		len(d.DeliveryAddress) >= minDeliveryLen &&
		(customerShared || d.HasCoordinate)
}

// MissingFields lists what still blocks completeness, for prompting.
func (d *DraftOrder) MissingFields(customerShared bool) []string {
	var missing []string
	if len(d.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(d.PickupAddress) < minPickupLen {
		missing = append(missing, "pickup_address")
	}
	if len(d.DeliveryAddress) < minDeliveryLen {
		missing = append(missing, "delivery_address")
	}
	if !customerShared && !d.HasCoordinate {
		missing = append(missing, "location")
	}
	return missing
}
