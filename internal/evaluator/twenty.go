package evaluator

import "time"

// IntervalTimer fires every interval of wall-clock time regardless of what the
// classifiers report. Firing and acknowledgement both restart the interval.
type IntervalTimer struct {
	interval  time.Duration
	lastReset time.Time
}

// NewIntervalTimer starts a timer at now.
func NewIntervalTimer(interval time.Duration, now time.Time) *IntervalTimer {
	return &IntervalTimer{interval: interval, lastReset: now}
}

// Tick reports whether the interval elapsed, restarting it if so.
func (t *IntervalTimer) Tick(now time.Time) bool {
	if t.interval <= 0 || now.Sub(t.lastReset) < t.interval {
		return false
	}
	t.lastReset = now
	return true
}

// Reset restarts the interval at now.
func (t *IntervalTimer) Reset(now time.Time) {
	t.lastReset = now
}

// SetInterval changes the interval, keeping the start point.
func (t *IntervalTimer) SetInterval(interval time.Duration) {
	t.interval = interval
}

// Remaining returns the time left until the next firing.
func (t *IntervalTimer) Remaining(now time.Time) time.Duration {
	left := t.interval - now.Sub(t.lastReset)
	if left < 0 {
		return 0
	}
	return left
}

// LastReset returns when the interval last started.
func (t *IntervalTimer) LastReset() time.Time {
	return t.lastReset
}
