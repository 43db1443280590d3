package repository

import (
	"context"
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAlertEvents_ListRecent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAlertEventsRepository(db, zap.NewNop())
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, ts, kind, message`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "kind", "message"}).
			AddRow("b", ts.Add(time.Minute), "face_touch", "Face Touch Detected").
			AddRow("a", ts, "posture", "Bad Posture"))

	events, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AlertFaceTouch, events[0].Kind)
	assert.Equal(t, ts, events[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertEvents_CountByKind(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAlertEventsRepository(db, zap.NewNop())
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`SELECT kind, COUNT`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "count"}).
			AddRow("posture", 4).
			AddRow("twenty_twenty_twenty", 2))

	counts, err := repo.CountByKind(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, map[models.AlertKind]int64{
		models.AlertPosture:      4,
		models.AlertTwentyTwenty: 2,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
