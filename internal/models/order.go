package models

import (
	"strings"
	"time"
)

type OrderKind string

// Order kinds. Master orders belong to a single customer, swag orders to an
// organization. Resolution probes master first.
const (
	OrderKindMaster OrderKind = "master"
	OrderKindSwag   OrderKind = "swag"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindMaster || k == OrderKindSwag
}

// Order statuses (the delivery axis; payment lives in PaymentStatus).
const (
	OrderStatusProcessing = "processing"
	OrderStatusKitting    = "kitting"
	OrderStatusShipping   = "shipping"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"

	PaymentStatusPaid = "paid"
)

type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
}

// Order is the adapter over both order shapes: only the fields the check-in
// workflow needs. Kind tells which store the row came from.
type Order struct {
	ID          uint64    `json:"id"`
	Kind        OrderKind `json:"kind"`
	OrderNumber string    `json:"orderNumber"`

	Status        string         `json:"status"`
	PaymentStatus string         `json:"paymentStatus,omitempty"`
	StatusHistory []StatusChange `json:"statusHistory,omitempty"`
	DeliveredAt   *time.Time     `json:"deliveredAt,omitempty"`

	// Master: direct customer ownership + assignment.
	CustomerID        *uint64 `json:"customerId,omitempty"`
	CustomerEmail     string  `json:"customerEmail,omitempty"`
	AssignedShipperID *uint64 `json:"assignedShipperId,omitempty"`

	// Swag: organization ownership. The organization reference migrated
	// column once; both fields must be checked.
	OrganizationID       *uint64 `json:"organizationId,omitempty"`
	LegacyOrganizationID *uint64 `json:"organization,omitempty"`
	CreatedByID          *uint64 `json:"createdBy,omitempty"`

	TotalRecipients int `json:"totalRecipients"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrganizationRef returns the swag order's organization id, preferring the
// current field over the legacy one.
func (o *Order) OrganizationRef() *uint64 {
	if o.OrganizationID != nil {
		return o.OrganizationID
	}
	return o.LegacyOrganizationID
}

const (
	masterOrderNumberPrefix = "ORD-"
	swagOrderNumberPrefix   = "SWG-"
)

// DetectOrderKind derives an order-kind hint from the order number pattern.
// Returns "" when the pattern matches neither kind.
func DetectOrderKind(orderNumber string) OrderKind {
	switch {
	case strings.HasPrefix(orderNumber, masterOrderNumberPrefix):
		return OrderKindMaster
	case strings.HasPrefix(orderNumber, swagOrderNumberPrefix):
		return OrderKindSwag
	default:
		return ""
	}
}
