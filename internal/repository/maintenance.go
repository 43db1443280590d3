package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// EraseResult lists the rows removed per table and the erase epoch the store
// moved to.
type EraseResult struct {
	Deleted map[string]int64
	Epoch   int64
}

// MaintenanceRepository runs destructive whole-store operations.
type MaintenanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMaintenanceRepository creates a maintenance repository.
func NewMaintenanceRepository(db *sql.DB, logger *zap.Logger) *MaintenanceRepository {
	return &MaintenanceRepository{
		db:     db,
		logger: logger,
	}
}

// EraseAll deletes every alert and aggregate row, plus every setting when
// includeSettings is set, in a single transaction. The tables are verified empty
// before commit; any failure rolls the whole erase back.
//
// The erase epoch is bumped first. That row lock waits for in-flight flushes and
// makes every later flush holding the old epoch fail with ErrEpochChanged.
func (r *MaintenanceRepository) EraseAll(ctx context.Context, includeSettings bool) (EraseResult, error) {
	tables := append([]string{}, MetricsTables...)
	if includeSettings {
		tables = append(tables, TableSettings)
	}
	result := EraseResult{Deleted: make(map[string]int64, len(tables))}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, bumpEpochQuery).Scan(&result.Epoch); err != nil {
		return result, fmt.Errorf("failed to advance erase epoch: %w", err)
	}

	for _, table := range tables {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
		if err != nil {
			return result, fmt.Errorf("failed to erase %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
		}
		result.Deleted[table] = n
	}

	for _, table := range tables {
		var remaining int64
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&remaining); err != nil {
			return result, fmt.Errorf("failed to verify erase of %s: %w", table, err)
		}
		if remaining != 0 {
			return result, fmt.Errorf("%s still has %d rows after erase", table, remaining)
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit erase: %w", err)
	}
	return result, nil
}

// CountRows returns the row count of table.
func (r *MaintenanceRepository) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
