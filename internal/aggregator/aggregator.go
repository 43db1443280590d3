// Package aggregator rolls classifications into in-memory daily and hourly totals
// between flushes.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// Deltas are the not-yet-persisted additions to each bucket.
type Deltas struct {
	Daily  []models.DailyAggregate
	Hourly []models.HourlyAggregate
}

// Empty reports whether there is nothing to flush.
func (d Deltas) Empty() bool {
	return len(d.Daily) == 0 && len(d.Hourly) == 0
}

// DailyTotals returns the delta for date, if any.
func (d Deltas) DailyTotals(date string) models.Totals {
	var t models.Totals
	for _, a := range d.Daily {
		if a.Date == date {
			t = t.Add(a.Totals)
		}
	}
	return t
}

// Engine accumulates deltas. Observe is called by the producer loop; the snapshot
// and take methods may be called from the flusher.
type Engine struct {
	mu     sync.Mutex
	maxGap time.Duration
	last   time.Time
	daily  map[string]models.Totals
	hourly map[models.HourKey]models.Totals
	logger *zap.Logger
}

// New creates an engine that clamps any single inter-frame gap to maxGap.
func New(maxGap time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		maxGap: maxGap,
		daily:  make(map[string]models.Totals),
		hourly: make(map[models.HourKey]models.Totals),
		logger: logger,
	}
}

// SetMaxGap changes the gap ceiling.
func (e *Engine) SetMaxGap(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxGap = d
}

// Observe accounts for the time since the previous processed frame and, when the
// distance is known, one distance sample in the bucket containing ts.
func (e *Engine) Observe(r models.ClassificationResult, ts time.Time) {
	e.observe(r, ts, true)
}

// Hold accounts for a frame that reused an earlier result: time is counted with
// that result's posture, but no new distance sample is taken.
func (e *Engine) Hold(r models.ClassificationResult, ts time.Time) {
	e.observe(r, ts, false)
}

func (e *Engine) observe(r models.ClassificationResult, ts time.Time, sample bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.last.IsZero() {
		gap := ts.Sub(e.last)
		if gap > e.maxGap {
			e.logger.Debug("Clamping frame gap",
				zap.Duration("gap", gap),
				zap.Duration("max", e.maxGap),
			)
			gap = e.maxGap
		}
		good := r.Posture == models.PostureGood
		for _, seg := range SplitInterval(ts.Add(-gap), ts) {
			secs := seg.Duration.Seconds()
			add := models.Totals{ScreenTimeSeconds: secs}
			if good {
				add.PostureGoodSeconds = secs
			}
			e.add(seg.Key, add)
		}
	}
	if ts.After(e.last) {
		e.last = ts
	}

	if sample && r.DistanceKnown() {
		e.add(models.HourOf(ts), models.Totals{DistanceSumCM: *r.DistanceCM, DistanceSampleCount: 1})
	}
}

// Interrupt marks a discontinuity (capture reconnect, pause); the next frame
// starts a new interval instead of bridging the gap.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = time.Time{}
}

// Snapshot copies the pending deltas without clearing them.
func (e *Engine) Snapshot() Deltas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deltas()
}

// TakeDeltas returns the pending deltas and clears them. The caller must either
// persist them or hand them back with Restore.
func (e *Engine) TakeDeltas() Deltas {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.deltas()
	e.daily = make(map[string]models.Totals)
	e.hourly = make(map[models.HourKey]models.Totals)
	return d
}

// Restore adds deltas that could not be persisted back into the engine.
func (e *Engine) Restore(d Deltas) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range d.Daily {
		e.daily[a.Date] = e.daily[a.Date].Add(a.Totals)
	}
	for _, a := range d.Hourly {
		k := models.HourKey{Date: a.Date, Hour: a.Hour}
		e.hourly[k] = e.hourly[k].Add(a.Totals)
	}
}

// Discard drops every pending delta, e.g. after a panic erase.
func (e *Engine) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.daily = make(map[string]models.Totals)
	e.hourly = make(map[models.HourKey]models.Totals)
}

func (e *Engine) add(k models.HourKey, t models.Totals) {
	e.hourly[k] = e.hourly[k].Add(t)
	e.daily[k.Date] = e.daily[k.Date].Add(t)
}

func (e *Engine) deltas() Deltas {
	var d Deltas
	for date, t := range e.daily {
		if !t.IsZero() {
			d.Daily = append(d.Daily, models.DailyAggregate{Date: date, Totals: t})
		}
	}
	for k, t := range e.hourly {
		if !t.IsZero() {
			d.Hourly = append(d.Hourly, models.HourlyAggregate{Date: k.Date, Hour: k.Hour, Totals: t})
		}
	}
	sort.Slice(d.Daily, func(i, j int) bool { return d.Daily[i].Date < d.Daily[j].Date })
	sort.Slice(d.Hourly, func(i, j int) bool {
		if d.Hourly[i].Date != d.Hourly[j].Date {
			return d.Hourly[i].Date < d.Hourly[j].Date
		}
		return d.Hourly[i].Hour < d.Hourly[j].Hour
	})
	return d
}
