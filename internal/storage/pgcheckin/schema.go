package pgcheckin

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  is_admin BOOLEAN NOT NULL DEFAULT FALSE,
  shipper_profile_id BIGINT NULL,
  customer_profile_id BIGINT NULL,
  organization_profile_id BIGINT NULL,
  email_opt_out BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS shipper_profiles (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`
CREATE TABLE IF NOT EXISTS master_orders (
  id BIGSERIAL PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT '',
  status_history JSONB NOT NULL DEFAULT '[]',
  delivered_at TIMESTAMPTZ NULL,
  customer_id BIGINT NULL,
  customer_email TEXT NOT NULL DEFAULT '',
  assigned_shipper_id BIGINT NULL,
  total_recipients INT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_master_orders_assigned_shipper ON master_orders(assigned_shipper_id)`,
		`
CREATE TABLE IF NOT EXISTS swag_orders (
  id BIGSERIAL PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT '',
  status_history JSONB NOT NULL DEFAULT '[]',
  delivered_at TIMESTAMPTZ NULL,
  organization_id BIGINT NULL,
  legacy_organization_id BIGINT NULL,
  created_by BIGINT NULL,
  total_recipients INT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS checkins (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL,
  order_kind TEXT NOT NULL,
  order_number TEXT NOT NULL DEFAULT '',
  shipper_id BIGINT NOT NULL,
  shipper_name TEXT NOT NULL DEFAULT '',
  customer_id BIGINT NOT NULL DEFAULT 0,
  customer_email TEXT NOT NULL DEFAULT '',
  lng DOUBLE PRECISION NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  address JSONB NOT NULL DEFAULT '{}',
  gps JSONB NOT NULL DEFAULT '{}',
  photos JSONB NOT NULL DEFAULT '[]',
  notes TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  thread_id TEXT NULL,
  email_sent BOOLEAN NOT NULL DEFAULT FALSE,
  email_sent_at TIMESTAMPTZ NULL,
  email_attempts INT NOT NULL DEFAULT 0,
  email_next_attempt TIMESTAMPTZ NULL,
  checkin_at TIMESTAMPTZ NOT NULL,
  is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
  deleted_at TIMESTAMPTZ NULL,
  deleted_by BIGINT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_shipper ON checkins(shipper_id, checkin_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_customer ON checkins(customer_id, checkin_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_order ON checkins(order_id, order_kind)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_lng_lat ON checkins(lng, lat)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_email_pending ON checkins(email_next_attempt) WHERE NOT email_sent AND NOT is_deleted`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
