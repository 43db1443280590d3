package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/aggregator"
	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/repository"

	"go.uber.org/zap"
)

// ErrFlushRetriesExhausted is reported once consecutive flush failures reach the limit.
// Pending data is still retained and retried on every later flush.
var ErrFlushRetriesExhausted = errors.New("flush retries exhausted")

// maxPendingAlerts bounds the alert backlog kept while the database is unreachable.
const maxPendingAlerts = 1000

// BatchWriter persists one flush atomically, refusing it with
// repository.ErrEpochChanged when the store was erased since epoch was read.
type BatchWriter interface {
	Epoch(ctx context.Context) (int64, error)
	Write(ctx context.Context, epoch int64, batch repository.FlushBatch) error
}

// Flusher periodically moves aggregator deltas and fired alerts into the database.
// Failed writes are handed back and retried on the next run. Data collected before
// an erase made by another process is dropped instead of written.
type Flusher struct {
	writer   BatchWriter
	engine   *aggregator.Engine
	onErased func(ctx context.Context)
	logger   *zap.Logger

	// mu is held for a whole flush. Exclusive takes it to keep flushes out.
	mu         sync.Mutex
	interval   time.Duration
	maxRetries int
	failures   int
	degraded   atomic.Bool

	epoch  atomic.Int64
	synced atomic.Bool

	qmu     sync.Mutex
	pending []models.AlertEvent
}

// NewFlusher creates a flusher.
func NewFlusher(writer BatchWriter, engine *aggregator.Engine, interval time.Duration, maxRetries int, logger *zap.Logger) *Flusher {
	f := &Flusher{
		writer: writer,
		engine: engine,
		logger: logger,
	}
	f.Configure(interval, maxRetries)
	return f
}

// OnErased registers fn to run, inside the flush, when the store turns out to have
// been erased by someone else.
func (f *Flusher) OnErased(fn func(ctx context.Context)) {
	f.mu.Lock()
	f.onErased = fn
	f.mu.Unlock()
}

// Sync reads the store's erase epoch. Data collected afterwards belongs to it.
func (f *Flusher) Sync(ctx context.Context) error {
	epoch, err := f.writer.Epoch(ctx)
	if err != nil {
		return err
	}
	f.AdoptEpoch(epoch)
	return nil
}

// AdoptEpoch sets the epoch after an erase made by this process.
func (f *Flusher) AdoptEpoch(epoch int64) {
	f.epoch.Store(epoch)
	f.synced.Store(true)
}

// Configure changes the flush interval and retry limit; the next wait uses them.
func (f *Flusher) Configure(interval time.Duration, maxRetries int) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	f.mu.Lock()
	f.interval = interval
	f.maxRetries = maxRetries
	f.mu.Unlock()
}

// QueueAlerts schedules events for the next flush. It never blocks on I/O.
func (f *Flusher) QueueAlerts(events []models.AlertEvent) {
	if len(events) == 0 {
		return
	}
	f.qmu.Lock()
	defer f.qmu.Unlock()
	f.pending = append(f.pending, events...)
	f.trimLocked()
}

// PendingAlerts returns how many alerts await persistence.
func (f *Flusher) PendingAlerts() int {
	f.qmu.Lock()
	defer f.qmu.Unlock()
	return len(f.pending)
}

// Degraded reports whether the retry limit has been reached without a successful flush since.
func (f *Flusher) Degraded() bool {
	return f.degraded.Load()
}

// Run flushes on every interval until ctx is done.
func (f *Flusher) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(f.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := f.Flush(ctx); err != nil {
			if errors.Is(err, ErrFlushRetriesExhausted) {
				f.logger.Error("Persisting metrics keeps failing, data is held in memory", zap.Error(err))
			} else if ctx.Err() == nil {
				f.logger.Warn("Flush failed, will retry", zap.Error(err))
			}
		}
	}
}

// Flush writes everything pending. On failure the unwritten part is kept for the
// next attempt.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	deltas := f.engine.TakeDeltas()
	alerts := f.takeAlerts()
	if deltas.Empty() && len(alerts) == 0 {
		return nil
	}

	err := f.write(ctx, repository.FlushBatch{Daily: deltas.Daily, Hourly: deltas.Hourly, Alerts: alerts})
	switch {
	case err == nil:
		if f.failures > 0 {
			f.logger.Info("Flush recovered", zap.Int("failed_attempts", f.failures))
		}
		f.failures = 0
		f.degraded.Store(false)
		return nil
	case errors.Is(err, repository.ErrEpochChanged):
		f.erasedElsewhere(ctx, deltas, alerts)
		return nil
	}

	f.engine.Restore(deltas)
	f.requeue(alerts)
	f.failures++
	if f.failures >= f.maxRetries {
		f.degraded.Store(true)
		return fmt.Errorf("%w after %d attempts: %w", ErrFlushRetriesExhausted, f.failures, err)
	}
	return err
}

func (f *Flusher) write(ctx context.Context, batch repository.FlushBatch) error {
	if !f.synced.Load() {
		if err := f.Sync(ctx); err != nil {
			return fmt.Errorf("failed to persist metrics: %w", err)
		}
	}
	if err := f.writer.Write(ctx, f.epoch.Load(), batch); err != nil {
		return fmt.Errorf("failed to persist metrics: %w", err)
	}
	return nil
}

// erasedElsewhere drops what was collected before the erase and moves to the new epoch.
func (f *Flusher) erasedElsewhere(ctx context.Context, deltas aggregator.Deltas, alerts []models.AlertEvent) {
	f.logger.Warn("Store was erased by another process, dropping data collected before the erase",
		zap.Int("daily_buckets", len(deltas.Daily)),
		zap.Int("alerts", len(alerts)),
	)
	f.failures = 0
	f.degraded.Store(false)
	if err := f.Sync(ctx); err != nil {
		f.synced.Store(false)
		f.logger.Warn("Failed to read new erase epoch", zap.Error(err))
	}
	if f.onErased != nil {
		f.onErased(ctx)
	}
}

// Exclusive runs fn while no flush is in progress.
func (f *Flusher) Exclusive(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn()
}

// ViewPending runs fn with the unflushed deltas while no flush is in progress, so
// whatever fn reads from the database neither includes nor misses them.
func (f *Flusher) ViewPending(fn func(pending aggregator.Deltas) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f.engine.Snapshot())
}

// DiscardAlerts drops every alert that has not been persisted yet.
func (f *Flusher) DiscardAlerts() {
	f.qmu.Lock()
	f.pending = nil
	f.qmu.Unlock()
}

func (f *Flusher) currentInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *Flusher) takeAlerts() []models.AlertEvent {
	f.qmu.Lock()
	defer f.qmu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// requeue puts failed alerts back ahead of anything queued meanwhile.
func (f *Flusher) requeue(events []models.AlertEvent) {
	f.qmu.Lock()
	defer f.qmu.Unlock()
	f.pending = append(append([]models.AlertEvent(nil), events...), f.pending...)
	f.trimLocked()
}

func (f *Flusher) trimLocked() {
	if over := len(f.pending) - maxPendingAlerts; over > 0 {
		f.logger.Warn("Alert backlog full, dropping oldest", zap.Int("dropped", over))
		f.pending = append([]models.AlertEvent(nil), f.pending[over:]...)
	}
}
