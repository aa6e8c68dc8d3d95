package checkins

import (
	"context"

	"github.com/BearBump/CheckinBox/internal/apperr"
	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/pkg/errors"
)

// Resolver locates an order across the two stores and verifies shipper
// access and customer ownership. Probe order is fixed: master before swag.
type Resolver struct {
	orders OrderStore
	users  UserStore
}

func NewResolver(orders OrderStore, users UserStore) *Resolver {
	return &Resolver{orders: orders, users: users}
}

// VerifyShipperRole loads the user and confirms an active shipper profile.
// "No profile" and "inactive profile" fail with distinguishable reasons.
func (r *Resolver) VerifyShipperRole(ctx context.Context, shipperID uint64) (*models.User, error) {
	user, err := r.users.GetUserByID(ctx, shipperID)
	if err != nil {
		return nil, errors.Wrap(err, "load shipper user")
	}
	if user == nil || user.ShipperProfileID == nil {
		return nil, apperr.Forbidden("no shipper role")
	}
	profile, err := r.users.GetShipperProfile(ctx, *user.ShipperProfileID)
	if err != nil {
		return nil, errors.Wrap(err, "load shipper profile")
	}
	if profile == nil {
		return nil, apperr.Forbidden("no shipper role")
	}
	if !profile.IsActive {
		return nil, apperr.Forbidden("inactive shipper")
	}
	return user, nil
}

func (r *Resolver) getByKind(ctx context.Context, kind models.OrderKind, orderID uint64) (*models.Order, error) {
	switch kind {
	case models.OrderKindMaster:
		return r.orders.GetMasterOrder(ctx, orderID)
	case models.OrderKindSwag:
		return r.orders.GetSwagOrder(ctx, orderID)
	default:
		return nil, errors.Errorf("unknown order kind %q", kind)
	}
}

// probe tries master first, then swag.
func (r *Resolver) probe(ctx context.Context, orderID uint64) (*models.Order, error) {
	order, err := r.orders.GetMasterOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}
	return r.orders.GetSwagOrder(ctx, orderID)
}

// ResolveOrderAccessForShipper verifies the shipper role, then locates the
// order by the known kind or by probing both stores.
//
// TODO(delivery): once the shipper assignment table lands, verify the
// assignment here instead of letting any active shipper through.
func (r *Resolver) ResolveOrderAccessForShipper(ctx context.Context, shipperID, orderID uint64, kind models.OrderKind) (*models.Order, error) {
	if _, err := r.VerifyShipperRole(ctx, shipperID); err != nil {
		return nil, err
	}

	var order *models.Order
	var err error
	if kind.Valid() {
		order, err = r.getByKind(ctx, kind, orderID)
	} else {
		order, err = r.probe(ctx, orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve order")
	}
	if order == nil {
		return nil, apperr.NotFound("order not found")
	}
	return order, nil
}

// ResolveOrderOwnershipForCustomer checks that the customer owns the order:
// direct customer id for master orders, organization linkage for swag
// orders. A truly absent order returns (nil, nil) so callers can decide
// between a hard not-found and a tolerant null.
func (r *Resolver) ResolveOrderOwnershipForCustomer(ctx context.Context, customerID, orderID uint64, kind models.OrderKind) (*models.Order, error) {
	var order *models.Order
	var err error
	if kind.Valid() {
		order, err = r.getByKind(ctx, kind, orderID)
	} else {
		order, err = r.probe(ctx, orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve order")
	}
	if order == nil {
		return nil, nil
	}

	switch order.Kind {
	case models.OrderKindMaster:
		if order.CustomerID == nil || *order.CustomerID != customerID {
			return nil, apperr.Forbidden("order does not belong to this customer")
		}
	case models.OrderKindSwag:
		user, err := r.users.GetUserByID(ctx, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "load customer user")
		}
		if user == nil || user.OrganizationProfileID == nil {
			return nil, apperr.Forbidden("no organization membership")
		}
		ref := order.OrganizationRef()
		if ref == nil || *ref != *user.OrganizationProfileID {
			return nil, apperr.Forbidden("order does not belong to this organization")
		}
	}
	return order, nil
}

// CheckCheckinAccess is the unified read gate: admin or direct id match
// short-circuits, otherwise the record's order is resolved with the
// customer-ownership check and, when that fails, the shipper-access check.
// Forbidden only after both paths fail.
func (r *Resolver) CheckCheckinAccess(ctx context.Context, viewer *models.User, c *models.Checkin) error {
	if viewer == nil || viewer.ID == 0 {
		return apperr.Unauthorized("authentication required")
	}
	if viewer.IsAdmin || viewer.ID == c.ShipperID || viewer.ID == c.CustomerID {
		return nil
	}

	order, err := r.ResolveOrderOwnershipForCustomer(ctx, viewer.ID, c.OrderID, c.OrderKind)
	if err == nil && order != nil {
		return nil
	}

	if _, err := r.ResolveOrderAccessForShipper(ctx, viewer.ID, c.OrderID, c.OrderKind); err == nil {
		return nil
	}
	return apperr.Forbidden("not allowed to view this checkin")
}
