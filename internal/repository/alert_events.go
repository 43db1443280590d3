package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository stores the append-only alert log.
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository creates an alert events repository.
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

const insertAlertQuery = `
	INSERT INTO alert_events (id, ts, kind, message)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
`

// insertAlerts appends events within tx. Re-inserting an id is a no-op, so a batch
// retried after an ambiguous commit failure never duplicates rows.
func insertAlerts(ctx context.Context, tx *sql.Tx, events []models.AlertEvent) error {
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, insertAlertQuery, ev.ID, ev.Timestamp, string(ev.Kind), ev.Message); err != nil {
			return fmt.Errorf("failed to insert alert event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// ListRecent returns the newest events first.
func (r *AlertEventsRepository) ListRecent(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	query := `
		SELECT id, ts, kind, message
		FROM alert_events
		ORDER BY ts DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var ev models.AlertEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &kind, &ev.Message); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		ev.Kind = models.AlertKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}
	return events, nil
}

// CountByKind counts events in [from, to).
func (r *AlertEventsRepository) CountByKind(ctx context.Context, from, to time.Time) (map[models.AlertKind]int64, error) {
	query := `
		SELECT kind, COUNT(*)
		FROM alert_events
		WHERE ts >= $1 AND ts < $2
		GROUP BY kind
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count alert events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlertKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[models.AlertKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert counts: %w", err)
	}
	return counts, nil
}
