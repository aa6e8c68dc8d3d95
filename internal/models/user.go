package models

import "time"

// User is the authorizing principal. Role checks are predicates over the
// optional profile links, never over record content.
type User struct {
	ID          uint64 `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	IsAdmin     bool   `json:"isAdmin"`

	ShipperProfileID      *uint64 `json:"shipperProfileId,omitempty"`
	CustomerProfileID     *uint64 `json:"customerProfileId,omitempty"`
	OrganizationProfileID *uint64 `json:"organizationProfileId,omitempty"`

	EmailOptOut bool `json:"emailOptOut,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) HasShipperLink() bool  { return u != nil && u.ShipperProfileID != nil }
func (u *User) HasCustomerLink() bool { return u != nil && u.CustomerProfileID != nil }
func (u *User) HasOrgLink() bool      { return u != nil && u.OrganizationProfileID != nil }

// ExclusivelyShipper reports a pure-shipper identity: a shipper link and none
// of customer/organization/admin.
func (u *User) ExclusivelyShipper() bool {
	return u.HasShipperLink() && !u.HasCustomerLink() && !u.HasOrgLink() && !u.IsAdmin
}

type ShipperProfile struct {
	ID       uint64 `json:"id"`
	UserID   uint64 `json:"userId"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	IsActive bool   `json:"isActive"`
}
