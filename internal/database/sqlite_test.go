package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ppg-screening/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T, driver string) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRepositoryWithDB(db, driver, zap.NewNop())
	repo.now = func() time.Time { return fixedNow }
	return db, mock, repo
}

func TestInitSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS bp_readings`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_bp_readings_user_time`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReading_CameraReading(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	hr, conf := 72, 0.8
	measured := time.Date(2024, 5, 9, 7, 30, 0, 0, time.UTC)
	reading := models.BPReading{
		UserID:       "user-1",
		Systolic:     118,
		Diastolic:    76,
		HeartRateBPM: &hr,
		Method:       models.MethodCameraPPG,
		Confidence:   &conf,
		PPGSignal:    &models.PPGSignal{Device: "iPhone 13", Camera: "rear", FPS: 30, Rhythm: models.RhythmNormalSinus},
		MeasuredAt:   measured,
	}

	mock.ExpectExec(`INSERT INTO bp_readings`).
		WithArgs(sqlmock.AnyArg(), "user-1", 118, 76, 72, "CAMERA_PPG", 0.8, sqlmock.AnyArg(), nil, measured.UnixMilli(), fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.CreateReading(context.Background(), reading)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReading_ManualKeepsIDAndNulls(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO bp_readings`).
		WithArgs("r-1", "user-1", 130, 85, nil, "MANUAL", nil, nil, nil, fixedNow.UnixMilli(), fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.CreateReading(context.Background(), models.BPReading{
		ID: "r-1", UserID: "user-1", Systolic: 130, Diastolic: 85, Method: models.MethodManual,
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReading_Error(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO bp_readings`).WillReturnError(errors.New("disk full"))

	_, err := repo.CreateReading(context.Background(), models.BPReading{UserID: "user-1", Systolic: 120, Diastolic: 80, Method: models.MethodManual})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert reading")
}

func TestListReadings(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	since := fixedNow.Add(-7 * 24 * time.Hour).UnixMilli()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "systolic", "diastolic", "heart_rate", "method", "confidence", "ppg_signal", "notes", "measured_at",
	}).
		AddRow("r-2", "user-1", 121, 79, 70, "CAMERA_PPG", 0.7,
			`{"device":"iPhone 13","camera":"rear","fps":30,"rrIntervals":[850,860],"hrv":{"sdnn":12,"rmssd":10,"pnn50":0},"rhythm":"NORMAL_SINUS","confidence":0.7,"waveform":[0.1,0.9]}`,
			nil, fixedNow.Add(-time.Hour).UnixMilli()).
		AddRow("r-1", "user-1", 130, 85, nil, "MANUAL", nil, nil, "cuff", fixedNow.Add(-48*time.Hour).UnixMilli())

	mock.ExpectQuery(`SELECT (.+) FROM bp_readings WHERE user_id = \? AND measured_at >= \?`).
		WithArgs("user-1", since).
		WillReturnRows(rows)

	readings, err := repo.ListReadings(context.Background(), "user-1", 7)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	cam := readings[0]
	assert.Equal(t, models.MethodCameraPPG, cam.Method)
	require.NotNil(t, cam.HeartRateBPM)
	assert.Equal(t, 70, *cam.HeartRateBPM)
	require.NotNil(t, cam.PPGSignal)
	assert.Equal(t, models.RhythmNormalSinus, cam.PPGSignal.Rhythm)
	assert.Len(t, cam.PPGSignal.Waveform, 2)
	assert.Nil(t, cam.Notes)

	manual := readings[1]
	assert.Nil(t, manual.HeartRateBPM)
	assert.Nil(t, manual.Confidence)
	assert.Nil(t, manual.PPGSignal)
	require.NotNil(t, manual.Notes)
	assert.Equal(t, "cuff", *manual.Notes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReadings_AllHistory(t *testing.T) {
	db, mock, repo := setupMockDB(t, DriverSQLite)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	readings, err := repo.ListReadings(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, readings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := NewRepositoryWithDB(nil, "postgresql", nil)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := NewRepositoryWithDB(nil, "", nil)
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))

	_, err := normalizeDriver("mysql")
	assert.Error(t, err)
}
