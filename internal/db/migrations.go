package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS observations (
		id               UUID PRIMARY KEY,
		event_time       TIMESTAMPTZ NOT NULL,
		raw_plate        TEXT NOT NULL,
		normalized_plate TEXT NOT NULL,
		province         TEXT,
		direction        TEXT NOT NULL,
		camera_id        TEXT NOT NULL,
		image_ref        TEXT,
		raw_payload      JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_observations_event_time ON observations(event_time);`,
	`CREATE INDEX IF NOT EXISTS idx_observations_direction_time ON observations(direction, event_time);`,
	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id               UUID PRIMARY KEY,
		entry_event_id   UUID REFERENCES observations(id),
		entry_plate      TEXT,
		entry_plate_norm TEXT,
		entry_province   TEXT,
		entry_time       TIMESTAMPTZ,
		exit_event_id    UUID REFERENCES observations(id),
		exit_plate       TEXT,
		exit_plate_norm  TEXT,
		exit_province    TEXT,
		exit_time        TIMESTAMPTZ,
		status           TEXT NOT NULL,
		match_type       TEXT NOT NULL DEFAULT 'NONE',
		confidence       NUMERIC(4,3) NOT NULL DEFAULT 0,
		duration_minutes INT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_status ON parking_sessions(status);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_entry_plate_norm ON parking_sessions(entry_plate_norm);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_exit_plate_norm ON parking_sessions(exit_plate_norm);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_entry_time ON parking_sessions(entry_time);`,
	// No two sessions may be completed from the same exit observation.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_parking_sessions_exit_event
		ON parking_sessions(exit_event_id) WHERE status = 'COMPLETED';`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
