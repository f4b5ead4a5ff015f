package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_HappyPath(t *testing.T) {
	s := InitialState()
	steps := []struct {
		ev   Event
		want Phase
	}{
		{Event{Kind: EventStart}, PhaseSetup},
		{Event{Kind: EventStreamReady}, PhaseCountdown},
		{Event{Kind: EventCountdownDone}, PhaseMeasuring},
		{Event{Kind: EventMeasureComplete}, PhaseDone},
	}
	for _, st := range steps {
		var err error
		s, err = Transition(s, st.ev)
		require.NoError(t, err)
		assert.Equal(t, st.want, s.Phase)
	}
}

func TestTransition_PracticeFlagCarried(t *testing.T) {
	s, err := Transition(InitialState(), Event{Kind: EventStart, Practice: true})
	require.NoError(t, err)
	for _, k := range []EventKind{EventStreamReady, EventCountdownDone} {
		s, err = Transition(s, Event{Kind: k})
		require.NoError(t, err)
		assert.True(t, s.Practice)
	}
	s, err = Transition(s, Event{Kind: EventMeasureComplete})
	require.NoError(t, err)
	assert.Equal(t, PhasePracticeResult, s.Phase)
}

func TestTransition_CancelFromEveryActivePhase(t *testing.T) {
	for _, p := range []Phase{PhaseInstructions, PhaseSetup, PhaseCountdown, PhaseMeasuring} {
		s, err := Transition(State{Phase: p}, Event{Kind: EventCancel})
		require.NoError(t, err, p)
		assert.Equal(t, PhaseCancelled, s.Phase)
	}
}

func TestTransition_InvalidLeavesStateUnchanged(t *testing.T) {
	cases := []struct {
		from State
		ev   EventKind
	}{
		{State{Phase: PhaseInstructions}, EventMeasureComplete},
		{State{Phase: PhaseSetup}, EventCountdownDone},
		{State{Phase: PhaseCountdown}, EventStart},
		{State{Phase: PhaseDone}, EventCancel},
		{State{Phase: PhaseMeasuring}, EventReset},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, Event{Kind: tc.ev})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, tc.from, got)
	}
}

func TestTransition_FailedAndReset(t *testing.T) {
	s, err := Transition(State{Phase: PhaseSetup}, Event{Kind: EventStreamFailed})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.True(t, s.Phase.Terminal())

	s, err = Transition(s, Event{Kind: EventReset})
	require.NoError(t, err)
	assert.Equal(t, InitialState(), s)
}

func TestClassifyFinger(t *testing.T) {
	assert.Equal(t, FingerGood, ClassifyFinger(200, 70))
	assert.Equal(t, FingerFair, ClassifyFinger(200, 120))
	assert.Equal(t, FingerFair, ClassifyFinger(120, 60))
	assert.Equal(t, FingerPoor, ClassifyFinger(120, 110))
	assert.Equal(t, FingerPoor, ClassifyFinger(80, 10))
	assert.Equal(t, FingerNone, ClassifyFinger(40, 10))
	assert.Equal(t, FingerGood, ClassifyFinger(160, 0))
}

func TestGradeSignal(t *testing.T) {
	assert.Equal(t, QualityGood, GradeSignal(12, 0.8))
	assert.Equal(t, QualityFair, GradeSignal(12, 0.5))
	assert.Equal(t, QualityFair, GradeSignal(5, 0.9))
	assert.Equal(t, QualityPoor, GradeSignal(2, 0.9))
	assert.Equal(t, QualityPoor, GradeSignal(20, 0.2))
}

func TestMeanRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{R: 200, G: 60, A: 255}
			if x >= 50 {
				c = color.RGBA{R: 100, G: 20, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	r, g := MeanRGB(img, 10, 8)
	assert.InDelta(t, 150, r, 0.001)
	assert.InDelta(t, 40, g, 0.001)

	r, g = MeanRGB(nil, 10, 8)
	assert.Zero(t, r)
	assert.Zero(t, g)
}
