// Package report computes period usage metrics and exports them as spreadsheets.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Period is a reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod parses a period name, case-insensitively.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Range is [Start, End) in local time; From and To are the inclusive date keys.
type Range struct {
	Start time.Time
	End   time.Time
}

// From returns the first date key in the range.
func (r Range) From() string {
	return models.DayOf(r.Start)
}

// To returns the last date key in the range.
func (r Range) To() string {
	return models.DayOf(r.End.AddDate(0, 0, -1))
}

// ContainsDate reports whether the date key falls inside the range.
func (r Range) ContainsDate(date string) bool {
	return date >= r.From() && date <= r.To()
}

// Ranges returns the period containing ref and the period before it. Weeks start
// on Monday.
func Ranges(p Period, ref time.Time) (current, previous Range) {
	y, m, d := ref.Date()
	loc := ref.Location()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch p {
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		current = Range{Start: start, End: start.AddDate(0, 0, 7)}
		previous = Range{Start: start.AddDate(0, 0, -7), End: start}
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		current = Range{Start: start, End: start.AddDate(0, 1, 0)}
		previous = Range{Start: start.AddDate(0, -1, 0), End: start}
	case PeriodYear:
		start := time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		current = Range{Start: start, End: start.AddDate(1, 0, 0)}
		previous = Range{Start: start.AddDate(-1, 0, 0), End: start}
	default:
		current = Range{Start: day, End: day.AddDate(0, 0, 1)}
		previous = Range{Start: day.AddDate(0, 0, -1), End: day}
	}
	return current, previous
}
