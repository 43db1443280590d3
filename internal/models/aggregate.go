package models

import "time"

// DateLayout is the bucket key format for days.
const DateLayout = "2006-01-02"

// Totals are the additive fields shared by daily and hourly buckets.
type Totals struct {
	ScreenTimeSeconds   float64 `json:"screen_time_seconds" db:"screen_time_seconds"`
	PostureGoodSeconds  float64 `json:"posture_good_seconds" db:"posture_good_seconds"`
	DistanceSumCM       float64 `json:"distance_sum_cm" db:"distance_sum_cm"`
	DistanceSampleCount int64   `json:"distance_sample_count" db:"distance_sample_count"`
}

// Add returns the field-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		ScreenTimeSeconds:   t.ScreenTimeSeconds + o.ScreenTimeSeconds,
		PostureGoodSeconds:  t.PostureGoodSeconds + o.PostureGoodSeconds,
		DistanceSumCM:       t.DistanceSumCM + o.DistanceSumCM,
		DistanceSampleCount: t.DistanceSampleCount + o.DistanceSampleCount,
	}
}

// IsZero reports whether every field is zero.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// MeanDistanceCM derives the mean distance; ok is false without samples.
func (t Totals) MeanDistanceCM() (float64, bool) {
	if t.DistanceSampleCount <= 0 {
		return 0, false
	}
	return t.DistanceSumCM / float64(t.DistanceSampleCount), true
}

// DailyAggregate is keyed by calendar date (YYYY-MM-DD, local time).
type DailyAggregate struct {
	Date string `json:"date" db:"date"`
	Totals
}

// HourlyAggregate is keyed by (date, hour 0-23).
type HourlyAggregate struct {
	Date string `json:"date" db:"date"`
	Hour int    `json:"hour" db:"hour"`
	Totals
}

// HourKey identifies an hourly bucket.
type HourKey struct {
	Date string
	Hour int
}

// DayOf returns the date bucket key for t in t's location.
func DayOf(t time.Time) string {
	return t.Format(DateLayout)
}

// HourOf returns the hourly bucket key for t in t's location.
func HourOf(t time.Time) HourKey {
	return HourKey{Date: t.Format(DateLayout), Hour: t.Hour()}
}

// DailyRow is a stored daily bucket with its surrogate id.
type DailyRow struct {
	ID int64
	DailyAggregate
}

// HourlyRow is a stored hourly bucket with its surrogate id.
type HourlyRow struct {
	ID int64
	HourlyAggregate
}
