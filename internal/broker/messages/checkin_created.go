package messages

import "time"

// CheckinCreated is published after a check-in commit. The worker uses it to
// attempt the customer notification without waiting for the next reconcile
// cycle.
type CheckinCreated struct {
	CheckinID uint64    `json:"checkin_id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID     uint64 `json:"order_id"`
	OrderKind   string `json:"order_kind"`
	OrderNumber string `json:"order_number,omitempty"`

	ShipperID     uint64 `json:"shipper_id"`
	CustomerID    uint64 `json:"customer_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
}
