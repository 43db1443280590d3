// Package reconciler keeps the aggregate store consistent: startup repair of
// duplicate buckets and the all-or-nothing panic erase.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/repository"

	"go.uber.org/zap"
)

var (
	// ErrMergeFailed means duplicate repair did not complete; the failing table was
	// rolled back and still holds its duplicates.
	ErrMergeFailed = errors.New("duplicate bucket merge failed")
	// ErrEraseFailed means the erase was rolled back; nothing was deleted.
	ErrEraseFailed = errors.New("erase failed")
	// ErrPartialErase means rows were found after a committed erase.
	ErrPartialErase = errors.New("erase incomplete")
	// ErrEraseNotArmed is returned by Confirm without a live Arm.
	ErrEraseNotArmed = errors.New("erase not armed or arming expired")
)

// SchemaStore creates tables and the bucket uniqueness indexes.
type SchemaStore interface {
	EnsureTables(ctx context.Context) error
	EnsureUniqueIndexes(ctx context.Context) error
}

// AggregateStore repairs duplicate buckets transactionally.
type AggregateStore interface {
	RepairDaily(ctx context.Context, merge func([]models.DailyRow) ([]models.DailyRow, []int64)) (repository.MergeStats, error)
	RepairHourly(ctx context.Context, merge func([]models.HourlyRow) ([]models.HourlyRow, []int64)) (repository.MergeStats, error)
}

// EraseStore deletes and counts rows.
type EraseStore interface {
	EraseAll(ctx context.Context, includeSettings bool) (repository.EraseResult, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

// CalibrationForgetter drops the in-memory calibration profile.
type CalibrationForgetter interface {
	Forget()
}

// EraseScope selects what a panic erase removes besides metrics and alerts.
type EraseScope struct {
	IncludeCalibration bool
}

// RepairReport summarises a startup repair.
type RepairReport struct {
	Daily  repository.MergeStats
	Hourly repository.MergeStats
}

// Reconciler orchestrates repair and erase.
type Reconciler struct {
	schema      SchemaStore
	aggregates  AggregateStore
	eraser      EraseStore
	calibration CalibrationForgetter
	armWindow   time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	armedAt  time.Time
	armScope EraseScope
}

// New creates a reconciler. Confirm must follow Arm within armWindow.
func New(schema SchemaStore, aggregates AggregateStore, eraser EraseStore, calibration CalibrationForgetter, armWindow time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		schema:      schema,
		aggregates:  aggregates,
		eraser:      eraser,
		calibration: calibration,
		armWindow:   armWindow,
		logger:      logger,
	}
}

// Repair ensures the schema exists, merges duplicate daily and hourly buckets and
// then adds the unique indexes the upserts rely on.
// Running it on a clean store changes nothing.
func (r *Reconciler) Repair(ctx context.Context) (RepairReport, error) {
	var report RepairReport

	if err := r.schema.EnsureTables(ctx); err != nil {
		return report, fmt.Errorf("failed to ensure schema: %w", err)
	}

	daily, err := r.aggregates.RepairDaily(ctx, MergeDaily)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	report.Daily = daily

	hourly, err := r.aggregates.RepairHourly(ctx, MergeHourly)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	report.Hourly = hourly

	if err := r.schema.EnsureUniqueIndexes(ctx); err != nil {
		return report, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	if daily.DeletedRows > 0 || hourly.DeletedRows > 0 {
		r.logger.Warn("Merged duplicate buckets",
			zap.Int("daily_keys", daily.MergedKeys),
			zap.Int("daily_deleted", daily.DeletedRows),
			zap.Int("hourly_keys", hourly.MergedKeys),
			zap.Int("hourly_deleted", hourly.DeletedRows),
		)
	}
	return report, nil
}

// Arm starts the confirmation window for a panic erase and returns its deadline.
func (r *Reconciler) Arm(scope EraseScope, now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armedAt = now
	r.armScope = scope
	r.logger.Warn("Panic erase armed",
		zap.Bool("include_calibration", scope.IncludeCalibration),
		zap.Duration("window", r.armWindow),
	)
	return now.Add(r.armWindow)
}

// Disarm cancels a pending Arm.
func (r *Reconciler) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armedAt = time.Time{}
}

// Armed reports whether a confirmation is currently accepted.
func (r *Reconciler) Armed(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armedLocked(now)
}

// Confirm executes the erase armed by Arm, using the armed scope.
func (r *Reconciler) Confirm(ctx context.Context, now time.Time) (repository.EraseResult, error) {
	r.mu.Lock()
	if !r.armedLocked(now) {
		r.mu.Unlock()
		return repository.EraseResult{}, ErrEraseNotArmed
	}
	scope := r.armScope
	r.armedAt = time.Time{}
	r.mu.Unlock()

	return r.PanicErase(ctx, scope)
}

// PanicErase deletes every alert event and aggregate bucket, plus the calibration
// profile when the scope says so. It either erases everything in scope or returns
// an error: ErrEraseFailed when rolled back, ErrPartialErase when rows remain after
// the commit.
func (r *Reconciler) PanicErase(ctx context.Context, scope EraseScope) (repository.EraseResult, error) {
	result, err := r.eraser.EraseAll(ctx, scope.IncludeCalibration)
	if err != nil {
		r.logger.Error("Panic erase rolled back", zap.Error(err))
		return result, fmt.Errorf("%w: %v", ErrEraseFailed, err)
	}

	tables := append([]string{}, repository.MetricsTables...)
	if scope.IncludeCalibration {
		tables = append(tables, repository.TableSettings)
	}
	for _, table := range tables {
		n, err := r.eraser.CountRows(ctx, table)
		if err != nil {
			return result, fmt.Errorf("%w: failed to verify %s: %v", ErrPartialErase, table, err)
		}
		if n != 0 {
			return result, fmt.Errorf("%w: %s has %d rows", ErrPartialErase, table, n)
		}
	}

	if scope.IncludeCalibration && r.calibration != nil {
		r.calibration.Forget()
	}

	r.logger.Warn("Panic erase completed",
		zap.Any("deleted", result.Deleted),
		zap.Bool("include_calibration", scope.IncludeCalibration),
	)
	return result, nil
}

func (r *Reconciler) armedLocked(now time.Time) bool {
	if r.armedAt.IsZero() {
		return false
	}
	return now.Sub(r.armedAt) <= r.armWindow
}
