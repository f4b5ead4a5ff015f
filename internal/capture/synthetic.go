package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"
	"sync"
	"time"
)

// SyntheticCamera renders a fingertip-over-lens image whose red brightness
// pulses like a reflectance PPG. It stands in for real hardware in tests and
// in the ppgsim tool. It is not physiological.
type SyntheticCamera struct {
	HeartRateBPM float64
	// RRPatternMs, when set, replaces the fixed heart rate with a cycle of
	// beat intervals.
	RRPatternMs []float64
	BaseRed     float64
	Amplitude   float64
	GreenRatio  float64
	Noise       float64
	Width       int
	Height      int
	// Facings lists the cameras the device exposes; empty means all.
	Facings []Facing
	HasTorch bool
	// Err, when non-nil, is returned by every AcquireStream call.
	Err   error
	Clock Clock

	mu       sync.Mutex
	attempts []Facing
	streams  []*SyntheticStream
}

// NewSyntheticCamera returns a camera with a steady pulse at hr bpm.
func NewSyntheticCamera(hr float64) *SyntheticCamera {
	return &SyntheticCamera{
		HeartRateBPM: hr,
		BaseRed:      190,
		Amplitude:    12,
		GreenRatio:   0.35,
		Width:        64,
		Height:       48,
		HasTorch:     true,
	}
}

func (c *SyntheticCamera) AcquireStream(ctx context.Context, facing Facing) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, facing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.Facings) > 0 && facing != FacingAny && !slices.Contains(c.Facings, facing) {
		return nil, fmt.Errorf("no %s camera", facing)
	}
	got := facing
	if got == FacingAny {
		got = FacingRear
		if len(c.Facings) > 0 {
			got = c.Facings[0]
		}
	}
	clock := c.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	s := &SyntheticStream{cam: c, facing: got, clock: clock}
	c.streams = append(c.streams, s)
	return s, nil
}

// Attempts lists the facings requested so far, in order.
func (c *SyntheticCamera) Attempts() []Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.attempts)
}

// Streams returns every stream handed out.
func (c *SyntheticCamera) Streams() []*SyntheticStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.streams)
}

// SyntheticStream is a stream opened by SyntheticCamera.
type SyntheticStream struct {
	cam    *SyntheticCamera
	facing Facing
	clock  Clock

	mu      sync.Mutex
	torch   bool
	stopped bool
	stops   int
	last    time.Time
	phase   float64
	beat    int
	frames  int
}

func (s *SyntheticStream) Facing() Facing { return s.facing }

func (s *SyntheticStream) TryEnableTorch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torch = s.cam.HasTorch
	return s.torch
}

// Stop may be called any number of times.
func (s *SyntheticStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.stopped = true
}

// Stopped reports whether Stop was called, and how often.
func (s *SyntheticStream) Stopped() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped, s.stops
}

func (s *SyntheticStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("stream stopped")
	}

	now := s.clock.Now()
	if !s.last.IsZero() {
		s.advance(now.Sub(s.last).Seconds())
	}
	s.last = now
	s.frames++

	red := s.cam.BaseRed + s.cam.Amplitude*pulse(s.phase)
	if s.cam.Noise > 0 {
		red += s.cam.Noise * (2*fract(math.Sin(float64(s.frames)*12.9898)*43758.5453) - 1)
	}
	return uniform(red, red*s.cam.GreenRatio, s.cam.Width, s.cam.Height), nil
}

// advance moves the beat phase forward by dt seconds.
func (s *SyntheticStream) advance(dt float64) {
	for dt > 0 {
		period := s.period()
		left := (1 - s.phase) * period
		if dt < left {
			s.phase += dt / period
			return
		}
		dt -= left
		s.phase = 0
		s.beat++
	}
}

func (s *SyntheticStream) period() float64 {
	// Non-positive pattern entries are skipped.
	if n := len(s.cam.RRPatternMs); n > 0 {
		for i := range n {
			if rr := s.cam.RRPatternMs[(s.beat+i)%n]; rr > 0 {
				return rr / 1000
			}
		}
	}
	if s.cam.HeartRateBPM <= 0 {
		return math.Inf(1)
	}
	return 60 / s.cam.HeartRateBPM
}

// pulse is a single systolic bump per beat, peaking early in the cycle.
func pulse(phase float64) float64 {
	z := (phase - 0.2) / 0.12
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }

func uniform(red, green float64, w, h int) image.Image {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: clampByte(red), G: clampByte(green), B: clampByte(green / 2), A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
