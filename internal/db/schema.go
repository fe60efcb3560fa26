package db

import (
	"context"

	"thermostat/internal/types"
)

// schema is idempotent and applied on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id            BIGSERIAL PRIMARY KEY,
		timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source        TEXT NOT NULL,
		temperature   DOUBLE PRECISION,
		humidity      DOUBLE PRECISION,
		voc           DOUBLE PRECISION,
		co2           DOUBLE PRECISION,
		pm25          DOUBLE PRECISION,
		radon         DOUBLE PRECISION,
		hvac_status   TEXT,
		fan_running   BOOLEAN,
		mode          TEXT,
		setpoint_heat DOUBLE PRECISION,
		setpoint_cool DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS actions (
		id          BIGSERIAL PRIMARY KEY,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		action      TEXT NOT NULL,
		reason      TEXT,
		avg_temp    DOUBLE PRECISION,
		target_temp DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS state (
		key        TEXT PRIMARY KEY,
		value      JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_source ON readings (source)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_timestamp ON actions (timestamp)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
		}
	}
	return nil
}
