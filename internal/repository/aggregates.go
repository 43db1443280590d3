package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// MergeStats reports the outcome of one duplicate-bucket repair pass.
type MergeStats struct {
	Table       string
	MergedKeys  int
	DeletedRows int
}

// AggregateRepository reads and writes the daily and hourly bucket tables.
type AggregateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAggregateRepository creates an aggregate repository.
func NewAggregateRepository(db *sql.DB, logger *zap.Logger) *AggregateRepository {
	return &AggregateRepository{
		db:     db,
		logger: logger,
	}
}

const upsertDailyQuery = `
	INSERT INTO daily_aggregates (date, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (date) DO UPDATE SET
		screen_time_seconds   = daily_aggregates.screen_time_seconds + EXCLUDED.screen_time_seconds,
		posture_good_seconds  = daily_aggregates.posture_good_seconds + EXCLUDED.posture_good_seconds,
		distance_sum_cm       = daily_aggregates.distance_sum_cm + EXCLUDED.distance_sum_cm,
		distance_sample_count = daily_aggregates.distance_sample_count + EXCLUDED.distance_sample_count
`

const upsertHourlyQuery = `
	INSERT INTO hourly_aggregates (date, hour, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (date, hour) DO UPDATE SET
		screen_time_seconds   = hourly_aggregates.screen_time_seconds + EXCLUDED.screen_time_seconds,
		posture_good_seconds  = hourly_aggregates.posture_good_seconds + EXCLUDED.posture_good_seconds,
		distance_sum_cm       = hourly_aggregates.distance_sum_cm + EXCLUDED.distance_sum_cm,
		distance_sample_count = hourly_aggregates.distance_sample_count + EXCLUDED.distance_sample_count
`

// upsertDeltas adds the given bucket deltas in place within tx, inserting
// missing buckets.
func upsertDeltas(ctx context.Context, tx *sql.Tx, daily []models.DailyAggregate, hourly []models.HourlyAggregate) error {
	for _, d := range daily {
		if _, err := tx.ExecContext(ctx, upsertDailyQuery,
			d.Date, d.ScreenTimeSeconds, d.PostureGoodSeconds, d.DistanceSumCM, d.DistanceSampleCount,
		); err != nil {
			return fmt.Errorf("failed to upsert daily aggregate %s: %w", d.Date, err)
		}
	}
	for _, h := range hourly {
		if _, err := tx.ExecContext(ctx, upsertHourlyQuery,
			h.Date, h.Hour, h.ScreenTimeSeconds, h.PostureGoodSeconds, h.DistanceSumCM, h.DistanceSampleCount,
		); err != nil {
			return fmt.Errorf("failed to upsert hourly aggregate %s %02d: %w", h.Date, h.Hour, err)
		}
	}
	return nil
}

// ListDaily returns daily buckets with from <= date <= to, oldest first.
func (r *AggregateRepository) ListDaily(ctx context.Context, from, to string) ([]models.DailyAggregate, error) {
	query := `
		SELECT date::text, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count
		FROM daily_aggregates
		WHERE date BETWEEN $1 AND $2
		ORDER BY date
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily aggregates: %w", err)
	}
	defer rows.Close()

	var out []models.DailyAggregate
	for rows.Next() {
		var d models.DailyAggregate
		if err := rows.Scan(&d.Date, &d.ScreenTimeSeconds, &d.PostureGoodSeconds, &d.DistanceSumCM, &d.DistanceSampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily aggregates: %w", err)
	}
	return out, nil
}

// ListHourly returns the hourly buckets of one date ordered by hour.
func (r *AggregateRepository) ListHourly(ctx context.Context, date string) ([]models.HourlyAggregate, error) {
	query := `
		SELECT date::text, hour, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count
		FROM hourly_aggregates
		WHERE date = $1
		ORDER BY hour
	`
	rows, err := r.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly aggregates: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyAggregate
	for rows.Next() {
		var h models.HourlyAggregate
		if err := rows.Scan(&h.Date, &h.Hour, &h.ScreenTimeSeconds, &h.PostureGoodSeconds, &h.DistanceSumCM, &h.DistanceSampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly aggregate: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hourly aggregates: %w", err)
	}
	return out, nil
}

// SumDaily totals the daily buckets with from <= date <= to.
func (r *AggregateRepository) SumDaily(ctx context.Context, from, to string) (models.Totals, error) {
	query := `
		SELECT
			COALESCE(SUM(screen_time_seconds), 0),
			COALESCE(SUM(posture_good_seconds), 0),
			COALESCE(SUM(distance_sum_cm), 0),
			COALESCE(SUM(distance_sample_count), 0)
		FROM daily_aggregates
		WHERE date BETWEEN $1 AND $2
	`
	var t models.Totals
	err := r.db.QueryRowContext(ctx, query, from, to).Scan(
		&t.ScreenTimeSeconds, &t.PostureGoodSeconds, &t.DistanceSumCM, &t.DistanceSampleCount,
	)
	if err != nil {
		return models.Totals{}, fmt.Errorf("failed to sum daily aggregates: %w", err)
	}
	return t, nil
}

// RepairDaily merges rows sharing a date using merge, inside one transaction.
// merge receives every row of every duplicated date and returns the surviving rows
// (with merged totals) plus the ids to delete.
func (r *AggregateRepository) RepairDaily(ctx context.Context, merge func([]models.DailyRow) ([]models.DailyRow, []int64)) (MergeStats, error) {
	stats := MergeStats{Table: TableDailyAggregates}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, date::text, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count
		FROM daily_aggregates
		WHERE date IN (
			SELECT date FROM daily_aggregates GROUP BY date HAVING COUNT(*) > 1
		)
		ORDER BY date, id
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("failed to query duplicate daily rows: %w", err)
	}
	var dups []models.DailyRow
	for rows.Next() {
		var d models.DailyRow
		if err := rows.Scan(&d.ID, &d.Date, &d.ScreenTimeSeconds, &d.PostureGoodSeconds, &d.DistanceSumCM, &d.DistanceSampleCount); err != nil {
			rows.Close()
			return stats, fmt.Errorf("failed to scan duplicate daily row: %w", err)
		}
		dups = append(dups, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate duplicate daily rows: %w", err)
	}
	if len(dups) == 0 {
		return stats, nil
	}

	survivors, deleted := merge(dups)
	for _, s := range survivors {
		_, err := tx.ExecContext(ctx, `
			UPDATE daily_aggregates
			SET screen_time_seconds = $2, posture_good_seconds = $3, distance_sum_cm = $4, distance_sample_count = $5
			WHERE id = $1
		`, s.ID, s.ScreenTimeSeconds, s.PostureGoodSeconds, s.DistanceSumCM, s.DistanceSampleCount)
		if err != nil {
			return stats, fmt.Errorf("failed to update merged daily row %d: %w", s.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, TableDailyAggregates, deleted); err != nil {
		return stats, err
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit daily repair: %w", err)
	}
	stats.MergedKeys = len(survivors)
	stats.DeletedRows = len(deleted)
	return stats, nil
}

// RepairHourly is RepairDaily for (date, hour) buckets.
func (r *AggregateRepository) RepairHourly(ctx context.Context, merge func([]models.HourlyRow) ([]models.HourlyRow, []int64)) (MergeStats, error) {
	stats := MergeStats{Table: TableHourlyAggregates}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, date::text, hour, screen_time_seconds, posture_good_seconds, distance_sum_cm, distance_sample_count
		FROM hourly_aggregates
		WHERE (date, hour) IN (
			SELECT date, hour FROM hourly_aggregates GROUP BY date, hour HAVING COUNT(*) > 1
		)
		ORDER BY date, hour, id
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("failed to query duplicate hourly rows: %w", err)
	}
	var dups []models.HourlyRow
	for rows.Next() {
		var h models.HourlyRow
		if err := rows.Scan(&h.ID, &h.Date, &h.Hour, &h.ScreenTimeSeconds, &h.PostureGoodSeconds, &h.DistanceSumCM, &h.DistanceSampleCount); err != nil {
			rows.Close()
			return stats, fmt.Errorf("failed to scan duplicate hourly row: %w", err)
		}
		dups = append(dups, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate duplicate hourly rows: %w", err)
	}
	if len(dups) == 0 {
		return stats, nil
	}

	survivors, deleted := merge(dups)
	for _, s := range survivors {
		_, err := tx.ExecContext(ctx, `
			UPDATE hourly_aggregates
			SET screen_time_seconds = $2, posture_good_seconds = $3, distance_sum_cm = $4, distance_sample_count = $5
			WHERE id = $1
		`, s.ID, s.ScreenTimeSeconds, s.PostureGoodSeconds, s.DistanceSumCM, s.DistanceSampleCount)
		if err != nil {
			return stats, fmt.Errorf("failed to update merged hourly row %d: %w", s.ID, err)
		}
	}
	if err := deleteIDs(ctx, tx, TableHourlyAggregates, deleted); err != nil {
		return stats, err
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit hourly repair: %w", err)
	}
	stats.MergedKeys = len(survivors)
	stats.DeletedRows = len(deleted)
	return stats, nil
}

func deleteIDs(ctx context.Context, tx *sql.Tx, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete merged rows from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("deleted %d of %d merged rows from %s", affected, len(ids), table)
	}
	return nil
}
