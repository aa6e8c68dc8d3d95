package pgcheckin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const assignedOrdersLimit = 50

func scanStatusHistory(b []byte, o *models.Order) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &o.StatusHistory); err != nil {
		return errors.Wrap(err, "unmarshal status history")
	}
	return nil
}

// GetMasterOrder returns (nil, nil) when absent so callers can probe kinds.
func (s *Storage) GetMasterOrder(ctx context.Context, id uint64) (*models.Order, error) {
	var o models.Order
	var historyB []byte
	err := s.db.QueryRow(ctx, `
SELECT id, order_number, status, payment_status, status_history, delivered_at,
       customer_id, customer_email, assigned_shipper_id, total_recipients,
       created_at, updated_at
FROM master_orders
WHERE id = $1
`, id).Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &historyB, &o.DeliveredAt,
		&o.CustomerID, &o.CustomerEmail, &o.AssignedShipperID, &o.TotalRecipients,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select master order")
	}
	if err := scanStatusHistory(historyB, &o); err != nil {
		return nil, err
	}
	o.Kind = models.OrderKindMaster
	return &o, nil
}

func (s *Storage) GetSwagOrder(ctx context.Context, id uint64) (*models.Order, error) {
	var o models.Order
	var historyB []byte
	err := s.db.QueryRow(ctx, `
SELECT id, order_number, status, payment_status, status_history, delivered_at,
       organization_id, legacy_organization_id, created_by, total_recipients,
       created_at, updated_at
FROM swag_orders
WHERE id = $1
`, id).Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &historyB, &o.DeliveredAt,
		&o.OrganizationID, &o.LegacyOrganizationID, &o.CreatedByID, &o.TotalRecipients,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select swag order")
	}
	if err := scanStatusHistory(historyB, &o); err != nil {
		return nil, err
	}
	o.Kind = models.OrderKindSwag
	return &o, nil
}

func orderTable(kind models.OrderKind) (string, error) {
	switch kind {
	case models.OrderKindMaster:
		return "master_orders", nil
	case models.OrderKindSwag:
		return "swag_orders", nil
	default:
		return "", errors.Errorf("unknown order kind %q", kind)
	}
}

// UpdateOrderStatus sets the status, appends a history entry, and maintains
// delivered_at for the terminal status.
func (s *Storage) UpdateOrderStatus(ctx context.Context, kind models.OrderKind, id uint64, status string, deliveredAt *time.Time) error {
	table, err := orderTable(kind)
	if err != nil {
		return err
	}

	entry, err := json.Marshal([]models.StatusChange{{Status: status, ChangedAt: time.Now().UTC()}})
	if err != nil {
		return errors.Wrap(err, "marshal history entry")
	}

	ct, err := s.db.Exec(ctx, `
UPDATE `+table+`
SET status = $2,
    status_history = status_history || $3::jsonb,
    delivered_at = $4,
    updated_at = now()
WHERE id = $1
`, id, status, entry, deliveredAt)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if ct.RowsAffected() == 0 {
		return errors.Errorf("%s order %d not found", kind, id)
	}
	return nil
}

// ListAssignedMasterOrders returns paid master orders assigned to the shipper
// that are still in a deliverable status, newest first.
func (s *Storage) ListAssignedMasterOrders(ctx context.Context, shipperID uint64) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_number, status, payment_status, status_history, delivered_at,
       customer_id, customer_email, assigned_shipper_id, total_recipients,
       created_at, updated_at
FROM master_orders
WHERE assigned_shipper_id = $1
  AND status IN ($2, $3)
  AND payment_status = $4
ORDER BY updated_at DESC
LIMIT $5
`, shipperID, models.OrderStatusProcessing, models.OrderStatusShipping, models.PaymentStatusPaid, assignedOrdersLimit)
	if err != nil {
		return nil, errors.Wrap(err, "select assigned orders")
	}
	defer rows.Close()

	out := []*models.Order{}
	for rows.Next() {
		var o models.Order
		var historyB []byte
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &historyB, &o.DeliveredAt,
			&o.CustomerID, &o.CustomerEmail, &o.AssignedShipperID, &o.TotalRecipients,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan assigned order")
		}
		if err := scanStatusHistory(historyB, &o); err != nil {
			return nil, err
		}
		o.Kind = models.OrderKindMaster
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateMasterOrder is used by fixtures and tests.
func (s *Storage) CreateMasterOrder(ctx context.Context, o *models.Order) (uint64, error) {
	now := time.Now().UTC()
	historyB, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return 0, errors.Wrap(err, "marshal history")
	}
	if o.StatusHistory == nil {
		historyB = []byte(`[]`)
	}
	totalRecipients := o.TotalRecipients
	if totalRecipients <= 0 {
		totalRecipients = 1
	}

	var id uint64
	err = s.db.QueryRow(ctx, `
INSERT INTO master_orders (
  order_number, status, payment_status, status_history, delivered_at,
  customer_id, customer_email, assigned_shipper_id, total_recipients,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING id
`, o.OrderNumber, o.Status, o.PaymentStatus, historyB, o.DeliveredAt,
		o.CustomerID, o.CustomerEmail, o.AssignedShipperID, totalRecipients, now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert master order")
	}
	return id, nil
}

func (s *Storage) CreateSwagOrder(ctx context.Context, o *models.Order) (uint64, error) {
	now := time.Now().UTC()
	historyB, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return 0, errors.Wrap(err, "marshal history")
	}
	if o.StatusHistory == nil {
		historyB = []byte(`[]`)
	}
	totalRecipients := o.TotalRecipients
	if totalRecipients <= 0 {
		totalRecipients = 1
	}

	var id uint64
	err = s.db.QueryRow(ctx, `
INSERT INTO swag_orders (
  order_number, status, payment_status, status_history, delivered_at,
  organization_id, legacy_organization_id, created_by, total_recipients,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING id
`, o.OrderNumber, o.Status, o.PaymentStatus, historyB, o.DeliveredAt,
		o.OrganizationID, o.LegacyOrganizationID, o.CreatedByID, totalRecipients, now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert swag order")
	}
	return id, nil
}
