package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id              BIGSERIAL PRIMARY KEY,
		plate           TEXT NOT NULL,
		description     TEXT,
		authorized      BOOLEAN NOT NULL DEFAULT false,
		valid_from      TIMESTAMPTZ,
		valid_until     TIMESTAMPTZ,
		access_level    TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_vehicles_plate ON vehicles(plate);`,
	`CREATE TABLE IF NOT EXISTS recognition_events (
		id              TEXT PRIMARY KEY,
		camera_id       TEXT NOT NULL,
		plate           TEXT NOT NULL,
		raw_plate       TEXT NOT NULL,
		confidence      NUMERIC(5,4),
		event_time      TIMESTAMPTZ NOT NULL,
		candidates      JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_recognition_events_plate ON recognition_events(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_recognition_events_event_time ON recognition_events(event_time);`,
	`CREATE TABLE IF NOT EXISTS access_decisions (
		id              BIGSERIAL PRIMARY KEY,
		event_id        TEXT NOT NULL,
		camera_id       TEXT NOT NULL,
		plate           TEXT NOT NULL,
		granted         BOOLEAN NOT NULL,
		reason          TEXT NOT NULL,
		decided_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_access_decisions_plate ON access_decisions(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_access_decisions_decided_at ON access_decisions(decided_at);`,
	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id               BIGSERIAL PRIMARY KEY,
		plate            TEXT NOT NULL,
		entry_time       TIMESTAMPTZ NOT NULL,
		exit_time        TIMESTAMPTZ,
		duration_seconds BIGINT,
		fee              NUMERIC(10,2) NOT NULL DEFAULT 0,
		payment_status   TEXT NOT NULL DEFAULT 'unpaid',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_plate ON parking_sessions(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_open ON parking_sessions(plate) WHERE exit_time IS NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
