package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Table names. settings is deliberately outside the metrics tables.
const (
	TableAlertEvents      = "alert_events"
	TableDailyAggregates  = "daily_aggregates"
	TableHourlyAggregates = "hourly_aggregates"
	TableSettings         = "settings"
	TableEraseEpoch       = "erase_epoch"
)

// MetricsTables are the tables cleared by a panic erase.
var MetricsTables = []string{TableAlertEvents, TableDailyAggregates, TableHourlyAggregates}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS alert_events (
		id      TEXT PRIMARY KEY,
		ts      TIMESTAMPTZ NOT NULL,
		kind    TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events (ts)`,
	`CREATE TABLE IF NOT EXISTS daily_aggregates (
		id                    BIGSERIAL PRIMARY KEY,
		date                  DATE NOT NULL,
		screen_time_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
		posture_good_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_sum_cm       DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_sample_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS hourly_aggregates (
		id                    BIGSERIAL PRIMARY KEY,
		date                  DATE NOT NULL,
		hour                  SMALLINT NOT NULL CHECK (hour BETWEEN 0 AND 23),
		screen_time_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
		posture_good_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_sum_cm       DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_sample_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS erase_epoch (
		id    SMALLINT PRIMARY KEY CHECK (id = 1),
		epoch BIGINT NOT NULL DEFAULT 0
	)`,
	`INSERT INTO erase_epoch (id, epoch) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}

// The unique indexes back the ON CONFLICT upserts. They can only be built once
// duplicate buckets have been merged away.
var createUniqueIndexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_daily_aggregates_date ON daily_aggregates (date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_hourly_aggregates_date_hour ON hourly_aggregates (date, hour)`,
}

// SchemaRepository creates the storage layout.
type SchemaRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaRepository creates a schema repository.
func NewSchemaRepository(db *sql.DB, logger *zap.Logger) *SchemaRepository {
	return &SchemaRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureTables creates any missing table.
func (r *SchemaRepository) EnsureTables(ctx context.Context) error {
	for _, stmt := range createTableStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// EnsureUniqueIndexes creates the bucket uniqueness indexes.
func (r *SchemaRepository) EnsureUniqueIndexes(ctx context.Context) error {
	for _, stmt := range createUniqueIndexStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create unique index: %w", err)
		}
	}
	return nil
}
