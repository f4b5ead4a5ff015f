package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticStream_SkipsNonPositiveIntervals(t *testing.T) {
	cam := NewSyntheticCamera(72)
	cam.RRPatternMs = []float64{800, 0, -5}
	s := &SyntheticStream{cam: cam}

	s.advance(5)
	assert.GreaterOrEqual(t, s.phase, 0.0)
	assert.Less(t, s.phase, 1.0)
	// 5 s of 800 ms beats
	assert.Equal(t, 6, s.beat)
}

func TestSyntheticStream_NoUsableIntervalHoldsPhase(t *testing.T) {
	cam := NewSyntheticCamera(0)
	cam.RRPatternMs = []float64{0, -1}
	s := &SyntheticStream{cam: cam}

	s.advance(5)
	assert.Equal(t, 0.0, s.phase)
	assert.Equal(t, 0, s.beat)
}

func TestSyntheticStream_FramesWithBrokenPattern(t *testing.T) {
	clock := newFakeClock()
	cam := NewSyntheticCamera(72)
	cam.Clock = clock
	cam.RRPatternMs = []float64{0}

	stream, err := cam.AcquireStream(context.Background(), FacingRear)
	require.NoError(t, err)
	for range 60 {
		_, err := stream.Frame(context.Background())
		require.NoError(t, err)
		clock.advance(time.Second / 30)
	}
}
