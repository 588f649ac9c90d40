package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// schemaSQL creates the tables this subsystem reads and writes. fire_events and the
// actor tables are owned by other workflows; they are created here only when missing.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS fire_events (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL DEFAULT '',
  location geometry(Geometry, 4326) NOT NULL,
  severity_level INTEGER NOT NULL DEFAULT 0,
  is_extinguished BOOLEAN NOT NULL DEFAULT FALSE,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  spread_prediction TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS residents (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  location geometry(Point, 4326) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_residents_location ON residents USING GIST ((location::geography));

CREATE TABLE IF NOT EXISTS responders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  location geometry(Point, 4326) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_responders_location ON responders USING GIST ((location::geography));

CREATE TABLE IF NOT EXISTS municipalities (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  alert_type TEXT NOT NULL,
  target_role TEXT NOT NULL,
  message TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  fire_id TEXT NOT NULL,
  CONSTRAINT alerts_fire_id_fkey FOREIGN KEY (fire_id) REFERENCES fire_events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_alerts_role_expires ON alerts(target_role, expires_at);

CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  target_role TEXT NOT NULL,
  message TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'Sent',
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  fire_id TEXT,
  user_id TEXT NOT NULL,
  CONSTRAINT notifications_fire_id_fkey FOREIGN KEY (fire_id) REFERENCES fire_events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_expires ON notifications(user_id, expires_at);

CREATE TABLE IF NOT EXISTS fire_assignments (
  id TEXT PRIMARY KEY,
  assigned_at TIMESTAMPTZ NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  fire_id TEXT NOT NULL,
  responder_id TEXT NOT NULL,
  CONSTRAINT fire_assignments_fire_id_fkey FOREIGN KEY (fire_id) REFERENCES fire_events(id) ON DELETE CASCADE,
  CONSTRAINT fire_assignments_responder_id_fkey FOREIGN KEY (responder_id) REFERENCES responders(id)
);
`

// Migrate applies the schema statement by statement. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, raw := range strings.Split(schemaSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement=%q)", err, stmt)
		}
	}
	return nil
}
