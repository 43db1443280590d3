package aggregator

import (
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func result(posture models.PostureState, distance *float64) models.ClassificationResult {
	return models.ClassificationResult{Posture: posture, DistanceCM: distance}
}

func cm(v float64) *float64 { return &v }

func TestSplitInterval_HourBoundary(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 59, 30, 0, time.UTC)
	segs := SplitInterval(start, start.Add(40*time.Second))

	require.Len(t, segs, 2)
	assert.Equal(t, models.HourKey{Date: "2026-03-02", Hour: 9}, segs[0].Key)
	assert.Equal(t, 30*time.Second, segs[0].Duration)
	assert.Equal(t, models.HourKey{Date: "2026-03-02", Hour: 10}, segs[1].Key)
	assert.Equal(t, 10*time.Second, segs[1].Duration)
}

func TestSplitInterval_DayBoundary(t *testing.T) {
	start := time.Date(2026, 3, 2, 23, 59, 50, 0, time.UTC)
	segs := SplitInterval(start, start.Add(15*time.Second))

	require.Len(t, segs, 2)
	assert.Equal(t, models.HourKey{Date: "2026-03-02", Hour: 23}, segs[0].Key)
	assert.Equal(t, models.HourKey{Date: "2026-03-03", Hour: 0}, segs[1].Key)
	assert.Equal(t, 15*time.Second, segs[0].Duration+segs[1].Duration)
}

func TestSplitInterval_SumsExactly(t *testing.T) {
	start := time.Date(2026, 3, 2, 7, 12, 3, 250_000_000, time.UTC)
	end := start.Add(3*time.Hour + 17*time.Minute)

	var total time.Duration
	for _, s := range SplitInterval(start, end) {
		total += s.Duration
	}
	assert.Equal(t, end.Sub(start), total)
	assert.Nil(t, SplitInterval(end, start))
	assert.Nil(t, SplitInterval(start, start))
}

func TestEngine_FirstFrameOnlySamplesDistance(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, cm(60)), ts)

	d := e.Snapshot()
	require.Len(t, d.Daily, 1)
	assert.Zero(t, d.Daily[0].ScreenTimeSeconds)
	assert.Equal(t, 60.0, d.Daily[0].DistanceSumCM)
	assert.EqualValues(t, 1, d.Daily[0].DistanceSampleCount)
}

func TestEngine_AccumulatesScreenAndPostureTime(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), ts)
	e.Observe(result(models.PostureGood, cm(50)), ts.Add(2*time.Second))
	e.Observe(result(models.PostureSlouching, cm(70)), ts.Add(3*time.Second))
	e.Observe(result(models.PostureUnknown, nil), ts.Add(4*time.Second))

	d := e.Snapshot()
	require.Len(t, d.Daily, 1)
	got := d.Daily[0].Totals
	assert.Equal(t, 4.0, got.ScreenTimeSeconds)
	assert.Equal(t, 2.0, got.PostureGoodSeconds)
	assert.Equal(t, 120.0, got.DistanceSumCM)
	assert.EqualValues(t, 2, got.DistanceSampleCount)
	mean, ok := got.MeanDistanceCM()
	assert.True(t, ok)
	assert.Equal(t, 60.0, mean)

	require.Len(t, d.Hourly, 1)
	assert.Equal(t, got, d.Hourly[0].Totals)
}

func TestEngine_HoldCountsTimeWithoutSampling(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := result(models.PostureGood, cm(55))

	e.Observe(r, ts)
	e.Hold(r, ts.Add(time.Second))
	e.Hold(r, ts.Add(2*time.Second))

	got := e.Snapshot().DailyTotals("2026-03-02")
	assert.Equal(t, 2.0, got.ScreenTimeSeconds)
	assert.Equal(t, 2.0, got.PostureGoodSeconds)
	assert.EqualValues(t, 1, got.DistanceSampleCount)
}

func TestEngine_ClampsLongGaps(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), ts)
	e.Observe(result(models.PostureGood, nil), ts.Add(2*time.Hour))

	assert.Equal(t, 5.0, e.Snapshot().DailyTotals("2026-03-02").ScreenTimeSeconds)
}

func TestEngine_SplitsAcrossHours(t *testing.T) {
	e := New(time.Minute, zap.NewNop())
	start := time.Date(2026, 3, 2, 9, 59, 30, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), start)
	e.Observe(result(models.PostureGood, nil), start.Add(40*time.Second))

	d := e.Snapshot()
	require.Len(t, d.Hourly, 2)
	assert.Equal(t, 9, d.Hourly[0].Hour)
	assert.Equal(t, 30.0, d.Hourly[0].ScreenTimeSeconds)
	assert.Equal(t, 10, d.Hourly[1].Hour)
	assert.Equal(t, 10.0, d.Hourly[1].ScreenTimeSeconds)
	assert.Equal(t, 40.0, d.DailyTotals("2026-03-02").ScreenTimeSeconds)
}

func TestEngine_SplitsAcrossDays(t *testing.T) {
	e := New(time.Minute, zap.NewNop())
	start := time.Date(2026, 3, 2, 23, 59, 50, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), start)
	e.Observe(result(models.PostureGood, cm(55)), start.Add(20*time.Second))

	d := e.Snapshot()
	assert.Equal(t, 10.0, d.DailyTotals("2026-03-02").ScreenTimeSeconds)
	next := d.DailyTotals("2026-03-03")
	assert.Equal(t, 10.0, next.ScreenTimeSeconds)
	assert.EqualValues(t, 1, next.DistanceSampleCount)
}

func TestEngine_ClockGoingBackwardsAddsNothing(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), ts)
	e.Observe(result(models.PostureGood, nil), ts.Add(-3*time.Second))
	e.Observe(result(models.PostureGood, nil), ts.Add(time.Second))

	assert.Equal(t, 1.0, e.Snapshot().DailyTotals("2026-03-02").ScreenTimeSeconds)
}

func TestEngine_Interrupt(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), ts)
	e.Interrupt()
	e.Observe(result(models.PostureGood, nil), ts.Add(3*time.Second))

	assert.True(t, e.Snapshot().Empty())
}

func TestEngine_TakeAndRestore(t *testing.T) {
	e := New(5*time.Second, zap.NewNop())
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.Observe(result(models.PostureGood, nil), ts)
	e.Observe(result(models.PostureGood, nil), ts.Add(2*time.Second))

	taken := e.TakeDeltas()
	assert.False(t, taken.Empty())
	assert.True(t, e.Snapshot().Empty())

	// flush failed meanwhile more frames arrived
	e.Observe(result(models.PostureGood, nil), ts.Add(3*time.Second))
	e.Restore(taken)

	d := e.Snapshot()
	assert.Equal(t, 3.0, d.DailyTotals("2026-03-02").ScreenTimeSeconds)
	require.Len(t, d.Hourly, 1)
	assert.Equal(t, 3.0, d.Hourly[0].ScreenTimeSeconds)

	e.Discard()
	assert.True(t, e.Snapshot().Empty())
}
