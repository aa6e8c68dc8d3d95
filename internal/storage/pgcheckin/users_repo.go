package pgcheckin

import (
	"context"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, email, display_name, is_admin,
       shipper_profile_id, customer_profile_id, organization_profile_id,
       email_opt_out, created_at
FROM users
WHERE id = $1
`, id).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.IsAdmin,
		&u.ShipperProfileID, &u.CustomerProfileID, &u.OrganizationProfileID,
		&u.EmailOptOut, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}

func (s *Storage) GetShipperProfile(ctx context.Context, id uint64) (*models.ShipperProfile, error) {
	var p models.ShipperProfile
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, name, phone, is_active
FROM shipper_profiles
WHERE id = $1
`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Phone, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipper profile")
	}
	return &p, nil
}

// CreateUser is used by fixtures and tests.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO users (
  email, display_name, is_admin,
  shipper_profile_id, customer_profile_id, organization_profile_id,
  email_opt_out, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`, u.Email, u.DisplayName, u.IsAdmin,
		u.ShipperProfileID, u.CustomerProfileID, u.OrganizationProfileID,
		u.EmailOptOut, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert user")
	}
	return id, nil
}

func (s *Storage) CreateShipperProfile(ctx context.Context, p *models.ShipperProfile) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO shipper_profiles (user_id, name, phone, is_active)
VALUES ($1,$2,$3,$4)
RETURNING id
`, p.UserID, p.Name, p.Phone, p.IsActive).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert shipper profile")
	}
	return id, nil
}

func (s *Storage) SetUserShipperProfile(ctx context.Context, userID, profileID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET shipper_profile_id = $2 WHERE id = $1`, userID, profileID)
	return errors.Wrap(err, "set shipper profile")
}
