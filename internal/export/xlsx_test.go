package export

import (
	"bytes"
	"testing"
	"time"

	"ppg-screening/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadingsWorkbook(t *testing.T) {
	hr := 72
	conf := 0.8
	notes := "Average of 3 camera readings"
	readings := []models.BPReading{
		{
			UserID:       "u1",
			Systolic:     130,
			Diastolic:    85,
			HeartRateBPM: &hr,
			Method:       models.MethodCameraPPG,
			Confidence:   &conf,
			PPGSignal:    &models.PPGSignal{Device: "Pixel 7", Rhythm: models.RhythmNormalSinus},
			Notes:        &notes,
			MeasuredAt:   time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		},
		{
			UserID:     "u1",
			Systolic:   118,
			Diastolic:  76,
			Method:     models.MethodManual,
			MeasuredAt: time.Date(2024, 4, 30, 21, 5, 0, 0, time.UTC),
		},
	}

	data, err := ReadingsWorkbook(readings, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ReadingsHeader, rows[0])

	first := rows[1]
	assert.Equal(t, "2024-05-01 08:30:00", first[0])
	assert.Equal(t, "130", first[1])
	assert.Equal(t, "85", first[2])
	assert.Equal(t, "100", first[3])
	assert.Equal(t, "Stage 1", first[4])
	assert.Equal(t, "72", first[5])
	assert.Equal(t, "CAMERA_PPG", first[6])
	assert.Equal(t, "NORMAL_SINUS", first[7])
	assert.Equal(t, "0.8", first[8])
	assert.Equal(t, "Pixel 7", first[9])
	assert.Equal(t, notes, first[10])

	second := rows[2]
	assert.Equal(t, "MANUAL", second[6])
	assert.Equal(t, "Normal", second[4])
	assert.Equal(t, "", second[5])
}

func TestReadingsWorkbook_HeaderOnly(t *testing.T) {
	data, err := ReadingsWorkbook(nil, time.UTC)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
