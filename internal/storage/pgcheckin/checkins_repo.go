package pgcheckin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const checkinColumns = `
  id, order_id, order_kind, order_number,
  shipper_id, shipper_name, customer_id, customer_email,
  lng, lat, address, gps, photos,
  notes, status, thread_id,
  email_sent, email_sent_at, email_attempts, email_next_attempt,
  checkin_at, is_deleted, deleted_at, deleted_by,
  created_at, updated_at`

type checkinRow interface {
	Scan(dest ...any) error
}

func scanCheckin(row checkinRow) (*models.Checkin, error) {
	var c models.Checkin
	var addressB, gpsB, photosB []byte
	if err := row.Scan(
		&c.ID, &c.OrderID, &c.OrderKind, &c.OrderNumber,
		&c.ShipperID, &c.ShipperName, &c.CustomerID, &c.CustomerEmail,
		&c.Location.Coordinates[0], &c.Location.Coordinates[1], &addressB, &gpsB, &photosB,
		&c.Notes, &c.Status, &c.ThreadID,
		&c.EmailSent, &c.EmailSentAt, &c.EmailAttempts, &c.EmailNextAttempt,
		&c.CheckinAt, &c.IsDeleted, &c.DeletedAt, &c.DeletedBy,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan checkin")
	}
	c.Location.Type = "Point"
	if err := json.Unmarshal(addressB, &c.Address); err != nil {
		return nil, errors.Wrap(err, "unmarshal address")
	}
	if err := json.Unmarshal(gpsB, &c.GPSMetadata); err != nil {
		return nil, errors.Wrap(err, "unmarshal gps")
	}
	if err := json.Unmarshal(photosB, &c.Photos); err != nil {
		return nil, errors.Wrap(err, "unmarshal photos")
	}
	return &c, nil
}

func (s *Storage) CreateCheckin(ctx context.Context, c *models.Checkin) (*models.Checkin, error) {
	now := time.Now().UTC()

	addressB, err := json.Marshal(c.Address)
	if err != nil {
		return nil, errors.Wrap(err, "marshal address")
	}
	gpsB, err := json.Marshal(c.GPSMetadata)
	if err != nil {
		return nil, errors.Wrap(err, "marshal gps")
	}
	photos := c.Photos
	if photos == nil {
		photos = []models.Photo{}
	}
	photosB, err := json.Marshal(photos)
	if err != nil {
		return nil, errors.Wrap(err, "marshal photos")
	}

	checkinAt := c.CheckinAt
	if checkinAt.IsZero() {
		checkinAt = now
	}

	var id uint64
	err = s.db.QueryRow(ctx, `
INSERT INTO checkins (
  order_id, order_kind, order_number,
  shipper_id, shipper_name, customer_id, customer_email,
  lng, lat, address, gps, photos,
  notes, status, checkin_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
RETURNING id
`, c.OrderID, c.OrderKind, c.OrderNumber,
		c.ShipperID, c.ShipperName, c.CustomerID, c.CustomerEmail,
		c.Location.Lng(), c.Location.Lat(), addressB, gpsB, photosB,
		c.Notes, c.Status, checkinAt, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert checkin")
	}

	return s.GetCheckinByID(ctx, id)
}

// GetCheckinByID returns the record including soft-deleted ones, or (nil, nil)
// when absent.
func (s *Storage) GetCheckinByID(ctx context.Context, id uint64) (*models.Checkin, error) {
	row := s.db.QueryRow(ctx, `SELECT `+checkinColumns+` FROM checkins WHERE id = $1`, id)
	c, err := scanCheckin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func listDefaults(opts models.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func (s *Storage) listByActor(ctx context.Context, column string, actorID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	limit, offset := listDefaults(opts)

	q := `SELECT ` + checkinColumns + ` FROM checkins WHERE ` + column + ` = $1 AND NOT is_deleted`
	args := []any{actorID}
	if opts.From != nil {
		args = append(args, opts.From.UTC())
		q += fmt.Sprintf(` AND checkin_at >= $%d`, len(args))
	}
	if opts.To != nil {
		args = append(args, opts.To.UTC())
		q += fmt.Sprintf(` AND checkin_at <= $%d`, len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if opts.OrderKind != "" {
		args = append(args, opts.OrderKind)
		q += fmt.Sprintf(` AND order_kind = $%d`, len(args))
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY checkin_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select checkins")
	}
	defer rows.Close()

	out := []*models.Checkin{}
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListCheckinsByShipper(ctx context.Context, shipperID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	return s.listByActor(ctx, "shipper_id", shipperID, opts)
}

func (s *Storage) ListCheckinsByCustomer(ctx context.Context, customerID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	return s.listByActor(ctx, "customer_id", customerID, opts)
}

// ListCheckinsByOrder returns active check-ins for an order. Kind is optional.
func (s *Storage) ListCheckinsByOrder(ctx context.Context, orderID uint64, kind models.OrderKind) ([]*models.Checkin, error) {
	q := `SELECT ` + checkinColumns + ` FROM checkins WHERE order_id = $1 AND NOT is_deleted`
	args := []any{orderID}
	if kind != "" {
		args = append(args, kind)
		q += ` AND order_kind = $2`
	}
	q += ` ORDER BY checkin_at DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select order checkins")
	}
	defer rows.Close()

	out := []*models.Checkin{}
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListCheckinsWithinBounds is inclusive on all four edges.
func (s *Storage) ListCheckinsWithinBounds(ctx context.Context, b models.Bounds, customerID *uint64, kind models.OrderKind, limit int) ([]*models.Checkin, error) {
	q := `SELECT ` + checkinColumns + ` FROM checkins
WHERE lng >= $1 AND lng <= $2 AND lat >= $3 AND lat <= $4 AND NOT is_deleted`
	args := []any{b.MinLng, b.MaxLng, b.MinLat, b.MaxLat}
	if customerID != nil {
		args = append(args, *customerID)
		q += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	if kind != "" {
		args = append(args, kind)
		q += fmt.Sprintf(` AND order_kind = $%d`, len(args))
	}
	q += ` ORDER BY checkin_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select bounds checkins")
	}
	defer rows.Close()

	out := []*models.Checkin{}
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SoftDeleteCheckin(ctx context.Context, id, deletedBy uint64) error {
	ct, err := s.db.Exec(ctx, `
UPDATE checkins
SET is_deleted = TRUE, deleted_at = now(), deleted_by = $2, updated_at = now()
WHERE id = $1 AND NOT is_deleted
`, id, deletedBy)
	if err != nil {
		return errors.Wrap(err, "soft delete checkin")
	}
	if ct.RowsAffected() == 0 {
		return errors.New("checkin not found or already deleted")
	}
	return nil
}

func (s *Storage) AttachThread(ctx context.Context, id uint64, threadID string) error {
	_, err := s.db.Exec(ctx, `UPDATE checkins SET thread_id = $2, updated_at = now() WHERE id = $1`, id, threadID)
	return errors.Wrap(err, "attach thread")
}

func (s *Storage) UpdateCheckinPhotos(ctx context.Context, id uint64, photos []models.Photo) error {
	if photos == nil {
		photos = []models.Photo{}
	}
	b, err := json.Marshal(photos)
	if err != nil {
		return errors.Wrap(err, "marshal photos")
	}
	_, err = s.db.Exec(ctx, `UPDATE checkins SET photos = $2, updated_at = now() WHERE id = $1`, id, b)
	return errors.Wrap(err, "update photos")
}

func (s *Storage) MarkEmailSent(ctx context.Context, id uint64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE checkins
SET email_sent = TRUE, email_sent_at = $2, email_next_attempt = NULL, updated_at = now()
WHERE id = $1
`, id, at.UTC())
	return errors.Wrap(err, "mark email sent")
}

func (s *Storage) MarkEmailFailed(ctx context.Context, id uint64, nextAttempt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE checkins
SET email_attempts = email_attempts + 1, email_next_attempt = $2, updated_at = now()
WHERE id = $1
`, id, nextAttempt.UTC())
	return errors.Wrap(err, "mark email failed")
}

// ClaimUnnotifiedCheckins picks completed, non-deleted check-ins whose
// notification is still pending and leases them so concurrent workers do not
// double-send. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimUnnotifiedCheckins(ctx context.Context, now time.Time, limit int, lease time.Duration, maxAttempts int) ([]*models.Checkin, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+checkinColumns+`
FROM checkins
WHERE NOT email_sent
  AND NOT is_deleted
  AND status = $1
  AND email_attempts < $2
  AND (email_next_attempt IS NULL OR email_next_attempt <= $3)
ORDER BY created_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, models.CheckinStatusCompleted, maxAttempts, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select unnotified checkins")
	}
	defer rows.Close()

	var picked []*models.Checkin
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		picked = append(picked, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, c := range picked {
		_, err := tx.Exec(ctx, `UPDATE checkins SET email_next_attempt = $2, updated_at = now() WHERE id = $1`, c.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease checkin")
		}
		c.EmailNextAttempt = &leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
