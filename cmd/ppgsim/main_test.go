package main

import (
	"context"
	"errors"
	"testing"

	"ppg-screening/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted(payloads ...models.ReportPayload) (func(context.Context) (*models.ReportPayload, error), *int) {
	calls := 0
	return func(context.Context) (*models.ReportPayload, error) {
		p := payloads[calls]
		calls++
		return &p, nil
	}, &calls
}

func TestRepeatUntilStored_RunsWholeSeries(t *testing.T) {
	run, calls := scripted(
		models.ReportPayload{Repeat: models.RepeatStatus{Count: 1, Total: 3}, Message: "again"},
		models.ReportPayload{Repeat: models.RepeatStatus{Count: 2, Total: 3}, Message: "again"},
		models.ReportPayload{Repeat: models.RepeatStatus{Count: 3, Total: 3}, Persisted: true, ReadingID: "r1"},
	)
	var repeats []string
	final, err := repeatUntilStored(context.Background(), run, func(p *models.ReportPayload) {
		repeats = append(repeats, p.Message)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []string{"again", "again"}, repeats)
	assert.Equal(t, "r1", final.ReadingID)
}

func TestRepeatUntilStored_StopsOnCleanOrPractice(t *testing.T) {
	run, calls := scripted(models.ReportPayload{Repeat: models.RepeatStatus{Count: 1, Total: 1}, Persisted: true})
	_, err := repeatUntilStored(context.Background(), run, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	run, calls = scripted(models.ReportPayload{Practice: true})
	_, err = repeatUntilStored(context.Background(), run, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	// an unsaved series that reached its total is not retried here
	run, calls = scripted(models.ReportPayload{Repeat: models.RepeatStatus{Count: 3, Total: 3}})
	_, err = repeatUntilStored(context.Background(), run, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestRepeatUntilStored_Errors(t *testing.T) {
	boom := errors.New("camera gone")
	_, err := repeatUntilStored(context.Background(), func(context.Context) (*models.ReportPayload, error) {
		return nil, boom
	}, nil)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	run, calls := scripted(
		models.ReportPayload{Repeat: models.RepeatStatus{Count: 1, Total: 3}},
		models.ReportPayload{Repeat: models.RepeatStatus{Count: 2, Total: 3}},
	)
	_, err = repeatUntilStored(ctx, run, func(*models.ReportPayload) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, *calls)
}
