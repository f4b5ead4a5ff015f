package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"ppg-screening/internal/models"
	"ppg-screening/internal/profiler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock advances only when slept on, so a 30 s capture runs instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time

	// onSleep, when set, is called after each sleep with the total slept time.
	onSleep func(total time.Duration)
	total   time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.total += d
	total, fn := c.total, c.onSleep
	c.mu.Unlock()
	if fn != nil {
		fn(total)
	}
	return ctx.Err()
}

// advance moves time forward without counting as a sleep.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// slowCamera hands out streams whose frames take cost to deliver.
type slowCamera struct {
	*SyntheticCamera
	clock *fakeClock
	cost  time.Duration
}

func (c *slowCamera) AcquireStream(ctx context.Context, facing Facing) (Stream, error) {
	s, err := c.SyntheticCamera.AcquireStream(ctx, facing)
	if err != nil {
		return nil, err
	}
	return &slowStream{Stream: s, clock: c.clock, cost: c.cost}, nil
}

type slowStream struct {
	Stream
	clock *fakeClock
	cost  time.Duration
}

func (s *slowStream) Frame(ctx context.Context) (image.Image, error) {
	s.clock.advance(s.cost)
	return s.Stream.Frame(ctx)
}

func newTestController(cam *SyntheticCamera, clock *fakeClock) *Controller {
	cam.Clock = clock
	opts := DefaultOptions()
	opts.Clock = clock
	device := profiler.Profile("Mozilla/5.0 (Linux; Android 13; SM-S911B) Mobile")
	return NewController(cam, device, opts, zap.NewNop())
}

func TestController_RunProducesAnalysis(t *testing.T) {
	clock := newFakeClock()
	cam := NewSyntheticCamera(72)
	c := newTestController(cam, clock)

	var phases []Phase
	c.OnUpdate(func(v ViewModel) {
		if len(phases) == 0 || phases[len(phases)-1] != v.Phase {
			phases = append(phases, v.Phase)
		}
	})

	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseSetup, PhaseCountdown, PhaseMeasuring, PhaseDone}, phases)
	assert.Equal(t, PhaseDone, c.State().Phase)
	assert.Equal(t, FacingRear, res.Facing)
	assert.True(t, res.TorchOn)
	assert.NotEmpty(t, res.SessionID)

	assert.InDelta(t, 900, len(res.Samples), 2)
	assert.InDelta(t, 30, res.FPS, 0.1)
	assert.InDelta(t, 72, res.Analysis.HeartRateBPM, 2)
	assert.Equal(t, models.RhythmNormalSinus, res.Analysis.Rhythm)
	assert.Greater(t, res.Analysis.Confidence, 0.6)
	assert.Empty(t, res.Quality)

	view := c.View()
	assert.Equal(t, 1.0, view.Progress)
	assert.Equal(t, FingerGood, view.Finger)
	assert.NotEmpty(t, view.Instructions)

	streams := cam.Streams()
	require.Len(t, streams, 1)
	stopped, _ := streams[0].Stopped()
	assert.True(t, stopped)
}

func TestController_PracticeGradesAndEndsInPracticeResult(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(NewSyntheticCamera(66), clock)

	res, err := c.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.Practice)
	assert.Equal(t, PhasePracticeResult, c.State().Phase)
	assert.Equal(t, QualityGood, res.Quality)
}

func TestController_FallsBackToFrontCamera(t *testing.T) {
	cam := NewSyntheticCamera(72)
	cam.Facings = []Facing{FacingFront}
	c := newTestController(cam, newFakeClock())

	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, FacingFront, res.Facing)
	assert.Equal(t, []Facing{FacingRear, FacingFront}, cam.Attempts())
}

func TestController_CameraFailureIsTerminal(t *testing.T) {
	cam := NewSyntheticCamera(72)
	cam.Err = errors.New("permission denied")
	c := newTestController(cam, newFakeClock())

	res, err := c.Run(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
	assert.True(t, IsCameraError(err))
	assert.Equal(t, PhaseFailed, c.State().Phase)
	assert.Equal(t, []Facing{FacingRear, FacingFront, FacingAny}, cam.Attempts())
}

func TestController_CancelDuringMeasuring(t *testing.T) {
	clock := newFakeClock()
	cam := NewSyntheticCamera(72)
	c := newTestController(cam, clock)

	// Countdown takes 5 s of sleeps; cancel ten seconds into measuring.
	clock.onSleep = func(total time.Duration) {
		if total >= 15*time.Second {
			c.Cancel()
		}
	}

	res, err := c.Run(context.Background(), false)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, PhaseCancelled, c.State().Phase)

	streams := cam.Streams()
	require.Len(t, streams, 1)
	stopped, _ := streams[0].Stopped()
	assert.True(t, stopped)

	c.Cancel()
	require.NoError(t, c.Close())
	assert.Equal(t, PhaseCancelled, c.State().Phase)
}

func TestController_ContextCancelStopsSession(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(NewSyntheticCamera(72), clock)

	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(total time.Duration) {
		if total >= 2*time.Second {
			cancel()
		}
	}
	_, err := c.Run(ctx, false)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, PhaseCancelled, c.State().Phase)
}

func TestController_ReusableAfterFinish(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(NewSyntheticCamera(72), clock)

	_, err := c.Run(context.Background(), true)
	require.NoError(t, err)
	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Practice)
	assert.Equal(t, PhaseDone, c.State().Phase)

	require.NoError(t, c.Reset())
	assert.Equal(t, PhaseInstructions, c.State().Phase)
}

func TestController_FrameCostDoesNotLowerFrameRate(t *testing.T) {
	clock := newFakeClock()
	cam := NewSyntheticCamera(72)
	cam.Clock = clock
	opts := DefaultOptions()
	opts.Clock = clock
	device := profiler.Profile("Mozilla/5.0 (Linux; Android 13; SM-S911B) Mobile")
	c := NewController(&slowCamera{SyntheticCamera: cam, clock: clock, cost: 12 * time.Millisecond}, device, opts, zap.NewNop())

	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.InDelta(t, 30, res.FPS, 1)
	assert.InDelta(t, 900, len(res.Samples), 5)
	assert.InDelta(t, 72, res.Analysis.HeartRateBPM, 2)
}
