package aggregator

import (
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Segment is the part of an interval that falls into one hourly bucket.
type Segment struct {
	Key      models.HourKey
	Duration time.Duration
}

// SplitInterval cuts [start, end) at every local hour boundary. The segment
// durations always sum to end-start. An empty or inverted interval yields nil.
func SplitInterval(start, end time.Time) []Segment {
	if !end.After(start) {
		return nil
	}
	var out []Segment
	cur := start
	for cur.Before(end) {
		next := nextHour(cur)
		if next.After(end) {
			next = end
		}
		out = append(out, Segment{Key: models.HourOf(cur), Duration: next.Sub(cur)})
		cur = next
	}
	return out
}

func nextHour(t time.Time) time.Time {
	y, m, d := t.Date()
	next := time.Date(y, m, d, t.Hour()+1, 0, 0, 0, t.Location())
	if !next.After(t) {
		// DST fold: the wall-clock hour repeats
		next = t.Add(time.Hour).Truncate(time.Hour)
	}
	return next
}
