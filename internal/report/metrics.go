package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/aggregator"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// DailySource reads persisted buckets.
type DailySource interface {
	SumDaily(ctx context.Context, from, to string) (models.Totals, error)
	ListDaily(ctx context.Context, from, to string) ([]models.DailyAggregate, error)
	ListHourly(ctx context.Context, date string) ([]models.HourlyAggregate, error)
}

// AlertCounter counts stored alerts by kind.
type AlertCounter interface {
	CountByKind(ctx context.Context, from, to time.Time) (map[models.AlertKind]int64, error)
}

// PeriodTotals are the figures of one range.
type PeriodTotals struct {
	Range  Range
	Totals models.Totals
	Alerts map[models.AlertKind]int64
}

// PosturePercent is the share of screen time spent in good posture.
func (t PeriodTotals) PosturePercent() float64 {
	if t.Totals.ScreenTimeSeconds <= 0 {
		return 0
	}
	return 100 * t.Totals.PostureGoodSeconds / t.Totals.ScreenTimeSeconds
}

// Metrics compares a period with the one before it.
type Metrics struct {
	Period   Period
	Current  PeriodTotals
	Previous PeriodTotals
}

// ScreenTimeChangePercent is the relative change in screen time; ok is false when
// the previous period is empty.
func (m Metrics) ScreenTimeChangePercent() (float64, bool) {
	prev := m.Previous.Totals.ScreenTimeSeconds
	if prev <= 0 {
		return 0, false
	}
	return 100 * (m.Current.Totals.ScreenTimeSeconds - prev) / prev, true
}

// PendingView exposes unflushed deltas consistently with the stored buckets:
// fn runs while no flush can move data from one to the other.
type PendingView interface {
	ViewPending(fn func(pending aggregator.Deltas) error) error
}

// PendingFunc is a PendingView over a plain snapshot function.
type PendingFunc func() aggregator.Deltas

// ViewPending implements PendingView.
func (f PendingFunc) ViewPending(fn func(pending aggregator.Deltas) error) error {
	return fn(f())
}

// Summarizer combines stored buckets with deltas that have not been flushed yet.
type Summarizer struct {
	aggregates DailySource
	alerts     AlertCounter
	pending    PendingView
	logger     *zap.Logger
}

// NewSummarizer creates a summarizer. pending may be nil.
func NewSummarizer(aggregates DailySource, alerts AlertCounter, pending PendingView, logger *zap.Logger) *Summarizer {
	if pending == nil {
		pending = PendingFunc(func() aggregator.Deltas { return aggregator.Deltas{} })
	}
	return &Summarizer{
		aggregates: aggregates,
		alerts:     alerts,
		pending:    pending,
		logger:     logger,
	}
}

// Summarize returns the metrics of the period containing ref and of the previous period.
func (s *Summarizer) Summarize(ctx context.Context, p Period, ref time.Time) (Metrics, error) {
	cur, prev := Ranges(p, ref)
	m := Metrics{Period: p}

	err := s.pending.ViewPending(func(pending aggregator.Deltas) error {
		var err error
		if m.Current, err = s.totals(ctx, cur, pending); err != nil {
			return err
		}
		m.Previous, err = s.totals(ctx, prev, pending)
		return err
	})
	if err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// Days lists the daily buckets of the period containing ref, unsaved deltas included.
func (s *Summarizer) Days(ctx context.Context, p Period, ref time.Time) ([]models.DailyAggregate, error) {
	cur, _ := Ranges(p, ref)
	var (
		stored  []models.DailyAggregate
		pending aggregator.Deltas
	)
	err := s.pending.ViewPending(func(d aggregator.Deltas) error {
		var err error
		stored, err = s.aggregates.ListDaily(ctx, cur.From(), cur.To())
		pending = d
		return err
	})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int, len(stored))
	for i, d := range stored {
		byDate[d.Date] = i
	}
	for _, d := range pending.Daily {
		if !cur.ContainsDate(d.Date) {
			continue
		}
		if i, ok := byDate[d.Date]; ok {
			stored[i].Totals = stored[i].Totals.Add(d.Totals)
			continue
		}
		byDate[d.Date] = len(stored)
		stored = append(stored, d)
	}
	sortDaily(stored)
	for i := range stored {
		stored[i].Totals = capPosture(stored[i].Totals)
	}
	return stored, nil
}

// Hours lists the hourly buckets of date, unsaved deltas included.
func (s *Summarizer) Hours(ctx context.Context, date string) ([]models.HourlyAggregate, error) {
	var (
		stored  []models.HourlyAggregate
		pending aggregator.Deltas
	)
	err := s.pending.ViewPending(func(d aggregator.Deltas) error {
		var err error
		stored, err = s.aggregates.ListHourly(ctx, date)
		pending = d
		return err
	})
	if err != nil {
		return nil, err
	}

	byHour := make(map[int]int, len(stored))
	for i, h := range stored {
		byHour[h.Hour] = i
	}
	for _, h := range pending.Hourly {
		if h.Date != date {
			continue
		}
		if i, ok := byHour[h.Hour]; ok {
			stored[i].Totals = stored[i].Totals.Add(h.Totals)
			continue
		}
		byHour[h.Hour] = len(stored)
		stored = append(stored, h)
	}
	sortHourly(stored)
	for i := range stored {
		stored[i].Totals = capPosture(stored[i].Totals)
	}
	return stored, nil
}

func (s *Summarizer) totals(ctx context.Context, r Range, pending aggregator.Deltas) (PeriodTotals, error) {
	t, err := s.aggregates.SumDaily(ctx, r.From(), r.To())
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("failed to sum %s..%s: %w", r.From(), r.To(), err)
	}
	for _, d := range pending.Daily {
		if r.ContainsDate(d.Date) {
			t = t.Add(d.Totals)
		}
	}

	out := PeriodTotals{Range: r, Totals: capPosture(t)}
	if s.alerts != nil {
		counts, err := s.alerts.CountByKind(ctx, r.Start, r.End)
		if err != nil {
			s.logger.Warn("Failed to count alerts", zap.Error(err))
		} else {
			out.Alerts = counts
		}
	}
	return out, nil
}

// capPosture clamps posture-good time to screen time.
func capPosture(t models.Totals) models.Totals {
	if t.PostureGoodSeconds > t.ScreenTimeSeconds {
		t.PostureGoodSeconds = t.ScreenTimeSeconds
	}
	return t
}

func sortDaily(rows []models.DailyAggregate) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
}

func sortHourly(rows []models.HourlyAggregate) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Hour < rows[j].Hour })
}
