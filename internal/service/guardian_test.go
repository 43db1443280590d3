package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/capture"
	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/reconciler"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// lifecycleSource serves its frames, then blocks until the context is done.
type lifecycleSource struct {
	frames []capture.Frame
	served atomic.Int64
	closed atomic.Bool
}

func (s *lifecycleSource) Next(ctx context.Context) (capture.Frame, error) {
	if n := int(s.served.Load()); n < len(s.frames) {
		s.served.Add(1)
		return s.frames[n], nil
	}
	<-ctx.Done()
	return capture.Frame{}, ctx.Err()
}

func (s *lifecycleSource) Close() error {
	s.closed.Store(true)
	return nil
}

type guardianFixture struct {
	svc  *GuardianService
	mock sqlmock.Sqlmock
	mr   *miniredis.Miniredis
	cfg  *config.Config
}

func newGuardianFixture(t *testing.T, source SourceOptions) *guardianFixture {
	t.Helper()

	detector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(detector.Close)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	cfg.Detector.URL = detector.URL
	cfg.Detector.RetryCount = 0
	cfg.Persistence.FlushInterval = time.Hour

	return &guardianFixture{
		svc:  newGuardianService(config.NewStore(cfg), zap.NewNop(), db, rdb, nil, source),
		mock: mock,
		mr:   mr,
		cfg:  cfg,
	}
}

func expectFlushedBuckets(mock sqlmock.Sqlmock, epoch int64, screenSeconds float64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT epoch FROM erase_epoch WHERE id = 1 FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"epoch"}).AddRow(epoch))
	mock.ExpectExec(`INSERT INTO daily_aggregates`).
		WithArgs("2026-03-02", screenSeconds, 0.0, 0.0, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO hourly_aggregates`).
		WithArgs("2026-03-02", 9, screenSeconds, 0.0, 0.0, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestGuardian_CancelFlushesSavesStateAndReleasesCamera(t *testing.T) {
	src := &lifecycleSource{}
	for i := 0; i < 5; i++ {
		src.frames = append(src.frames, capture.Frame{Seq: uint64(i), Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
	opener := func(ctx context.Context) (capture.Source, error) { return src, nil }
	fx := newGuardianFixture(t, SourceOptions{Opener: opener})

	fx.mock.ExpectQuery(`SELECT epoch FROM erase_epoch`).
		WillReturnRows(sqlmock.NewRows([]string{"epoch"}).AddRow(0))
	expectFlushedBuckets(fx.mock, 0, 4.0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		return fx.svc.aggregator.Snapshot().DailyTotals("2026-03-02").ScreenTimeSeconds == 4.0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	assert.NoError(t, fx.mock.ExpectationsWereMet())
	assert.True(t, fx.svc.aggregator.Snapshot().Empty())
	assert.True(t, src.closed.Load())
	assert.True(t, fx.mr.Exists(fx.svc.stateCache.Key()))
}

func expectEraseCommitted(mock sqlmock.Sqlmock, epoch int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE erase_epoch SET epoch = epoch \+ 1`).
		WillReturnRows(sqlmock.NewRows([]string{"epoch"}).AddRow(epoch))
	for _, table := range []string{"alert_events", "daily_aggregates", "hourly_aggregates"} {
		mock.ExpectExec(`DELETE FROM ` + table).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for _, table := range []string{"alert_events", "daily_aggregates", "hourly_aggregates"} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ` + table).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}
	mock.ExpectCommit()
	for _, table := range []string{"alert_events", "daily_aggregates", "hourly_aggregates"} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ` + table).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}
}

func TestGuardian_ConfirmEraseForgetsInMemoryState(t *testing.T) {
	fx := newGuardianFixture(t, SourceOptions{})
	ctx := context.Background()
	svc := fx.svc

	svc.aggregator.Observe(models.ClassificationResult{}, t0)
	svc.aggregator.Observe(models.ClassificationResult{}, t0.Add(2*time.Second))
	svc.flusher.QueueAlerts(alertEvents(2))
	svc.presenter.PushAlerts(alertEvents(1))
	require.NoError(t, svc.stateCache.Save(ctx, svc.alerts.Snapshot(t0)))
	svc.publisher.PublishStatus(ctx, models.LiveStatus{Timestamp: t0})
	require.True(t, fx.mr.Exists(fx.cfg.Publisher.SnapshotKey))

	expectEraseCommitted(fx.mock, 1)
	svc.ArmErase(reconciler.EraseScope{})
	result, err := svc.ConfirmErase(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Epoch)

	assert.True(t, svc.aggregator.Snapshot().Empty())
	assert.Zero(t, svc.flusher.PendingAlerts())
	assert.Empty(t, svc.presenter.DrainAlerts())
	assert.False(t, fx.mr.Exists(svc.stateCache.Key()))
	assert.False(t, fx.mr.Exists(fx.cfg.Publisher.SnapshotKey))

	// later data is written under the epoch the erase moved to
	svc.aggregator.Observe(models.ClassificationResult{}, t0.Add(3*time.Second))
	svc.aggregator.Observe(models.ClassificationResult{}, t0.Add(4*time.Second))
	expectFlushedBuckets(fx.mock, 1, 2.0)
	require.NoError(t, svc.flusher.Flush(ctx))
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestGuardian_FlushAfterEraseElsewhereDropsStaleData(t *testing.T) {
	fx := newGuardianFixture(t, SourceOptions{})
	ctx := context.Background()
	svc := fx.svc

	fx.mock.ExpectExec(`INSERT INTO settings`).WillReturnResult(sqlmock.NewResult(0, 1))
	_, err := svc.CalibrateFromCard(ctx, 200)
	require.NoError(t, err)
	require.True(t, svc.calibration.Calibrated())

	svc.flusher.AdoptEpoch(0)
	svc.aggregator.Observe(models.ClassificationResult{}, t0)
	svc.aggregator.Observe(models.ClassificationResult{}, t0.Add(2*time.Second))
	svc.flusher.QueueAlerts(alertEvents(1))
	require.NoError(t, svc.stateCache.Save(ctx, svc.alerts.Snapshot(t0)))

	// another process erased everything, calibration included
	fx.mock.ExpectBegin()
	fx.mock.ExpectQuery(`SELECT epoch FROM erase_epoch WHERE id = 1 FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"epoch"}).AddRow(1))
	fx.mock.ExpectRollback()
	fx.mock.ExpectQuery(`SELECT epoch FROM erase_epoch`).
		WillReturnRows(sqlmock.NewRows([]string{"epoch"}).AddRow(1))
	fx.mock.ExpectQuery(`SELECT value FROM settings`).WillReturnError(sql.ErrNoRows)

	require.NoError(t, svc.flusher.Flush(ctx))
	assert.NoError(t, fx.mock.ExpectationsWereMet())

	assert.True(t, svc.aggregator.Snapshot().Empty())
	assert.Zero(t, svc.flusher.PendingAlerts())
	assert.False(t, fx.mr.Exists(svc.stateCache.Key()))
	assert.False(t, svc.calibration.Calibrated())
}
