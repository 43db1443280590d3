package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// ErrEpochChanged is returned by Write when the store was erased after the
// writer last synced its epoch. Nothing was written.
var ErrEpochChanged = errors.New("store was erased since the epoch was read")

const bumpEpochQuery = `UPDATE erase_epoch SET epoch = epoch + 1 WHERE id = 1 RETURNING epoch`

// FlushBatch is everything one flush persists.
type FlushBatch struct {
	Daily  []models.DailyAggregate
	Hourly []models.HourlyAggregate
	Alerts []models.AlertEvent
}

// Empty reports whether the batch carries no rows.
func (b FlushBatch) Empty() bool {
	return len(b.Daily) == 0 && len(b.Hourly) == 0 && len(b.Alerts) == 0
}

// FlushRepository writes aggregate deltas and alerts fenced by the erase epoch.
type FlushRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFlushRepository creates a flush repository.
func NewFlushRepository(db *sql.DB, logger *zap.Logger) *FlushRepository {
	return &FlushRepository{
		db:     db,
		logger: logger,
	}
}

// Epoch returns the current erase epoch.
func (r *FlushRepository) Epoch(ctx context.Context) (int64, error) {
	var epoch int64
	if err := r.db.QueryRowContext(ctx, `SELECT epoch FROM erase_epoch WHERE id = 1`).Scan(&epoch); err != nil {
		return 0, fmt.Errorf("failed to read erase epoch: %w", err)
	}
	return epoch, nil
}

// Write persists b in one transaction, provided the store is still at epoch.
// The epoch row is share-locked for the duration, so an erase either waits for
// the write to commit or the write sees the new epoch and is refused.
func (r *FlushRepository) Write(ctx context.Context, epoch int64, b FlushBatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT epoch FROM erase_epoch WHERE id = 1 FOR SHARE`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read erase epoch: %w", err)
	}
	if current != epoch {
		return fmt.Errorf("%w: have %d, store is at %d", ErrEpochChanged, epoch, current)
	}

	if err := upsertDeltas(ctx, tx, b.Daily, b.Hourly); err != nil {
		return err
	}
	if err := insertAlerts(ctx, tx, b.Alerts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush: %w", err)
	}
	return nil
}
