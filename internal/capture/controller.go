// Package capture drives a timed camera acquisition: it opens a stream,
// counts down, samples frames for a fixed wall-clock duration with live
// feedback, and hands the red channel to the analyzer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ppg-screening/internal/analysis"
	"ppg-screening/internal/i18n"
	"ppg-screening/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a Controller. Zero fields take the DefaultOptions value;
// a negative CountdownSeconds skips the countdown.
type Options struct {
	CountdownSeconds int
	CountdownTick    time.Duration
	Duration         time.Duration
	FrameInterval    time.Duration
	FPSWindow        time.Duration
	PreviewWindow    int
	RasterWidth      int
	RasterHeight     int
	Locale           string

	Clock      Clock
	Analyzer   *analysis.Analyzer
	Translator i18n.Translator
}

func DefaultOptions() Options {
	return Options{
		CountdownSeconds: 5,
		CountdownTick:    time.Second,
		Duration:         30 * time.Second,
		FrameInterval:    time.Second / 30,
		FPSWindow:        time.Second,
		PreviewWindow:    analysis.PreviewWindow,
		RasterWidth:      40,
		RasterHeight:     30,
		Locale:           i18n.DefaultLocale,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CountdownSeconds < 0 {
		o.CountdownSeconds = 0
	} else if o.CountdownSeconds == 0 {
		o.CountdownSeconds = d.CountdownSeconds
	}
	if o.CountdownTick <= 0 {
		o.CountdownTick = d.CountdownTick
	}
	if o.Duration <= 0 {
		o.Duration = d.Duration
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = d.FrameInterval
	}
	if o.FPSWindow <= 0 {
		o.FPSWindow = d.FPSWindow
	}
	if o.PreviewWindow <= 0 {
		o.PreviewWindow = d.PreviewWindow
	}
	if o.RasterWidth <= 0 {
		o.RasterWidth = d.RasterWidth
	}
	if o.RasterHeight <= 0 {
		o.RasterHeight = d.RasterHeight
	}
	if o.Locale == "" {
		o.Locale = d.Locale
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Analyzer == nil {
		o.Analyzer = analysis.New(analysis.DefaultThresholds())
	}
	if o.Translator == nil {
		o.Translator = i18n.Default()
	}
	return o
}

// ViewModel is everything a renderer needs to draw the capture screen.
type ViewModel struct {
	Phase         Phase         `json:"phase"`
	Practice      bool          `json:"practice"`
	Message       string        `json:"message"`
	Instructions  string        `json:"instructions"`
	Warning       string        `json:"warning,omitempty"`
	Countdown     int           `json:"countdown"`
	Progress      float64       `json:"progress"`
	ElapsedMs     int64         `json:"elapsedMs"`
	LiveBPM       int           `json:"liveBpm"`
	Finger        FingerQuality `json:"finger,omitempty"`
	FingerMessage string        `json:"fingerMessage,omitempty"`
	FPS           float64       `json:"fps"`
	Facing        Facing        `json:"facing,omitempty"`
	TorchOn       bool          `json:"torchOn"`
}

// Result is produced when measuring completes. Practice results carry a
// Quality grade and must not be persisted.
type Result struct {
	SessionID  string
	Practice   bool
	Device     models.DeviceInfo
	Facing     Facing
	TorchOn    bool
	FPS        float64
	Samples    []models.Sample
	Analysis   models.PPGAnalysis
	Amplitude  float64
	Quality    SignalQuality
	StartedAt  time.Time
	FinishedAt time.Time
}

// Controller runs one capture session at a time over an injected Camera.
type Controller struct {
	cam    Camera
	device models.DeviceInfo
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	view     ViewModel
	stream   Stream
	active   bool
	cancel   context.CancelFunc
	onUpdate func(ViewModel)
}

func NewController(cam Camera, device models.DeviceInfo, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cam:    cam,
		device: device,
		opts:   opts.withDefaults(),
		logger: logger,
		state:  InitialState(),
	}
	c.view = ViewModel{
		Phase:        PhaseInstructions,
		Instructions: device.Instructions,
		Warning:      device.OldDeviceWarning,
	}
	c.view.Message = c.phaseMessage(PhaseInstructions, 0)
	return c
}

// OnUpdate registers an observer called after every view-model change. It is
// invoked without the controller lock held.
func (c *Controller) OnUpdate(fn func(ViewModel)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// State returns the current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a snapshot of the view model.
func (c *Controller) View() ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Run executes a full session and blocks until it ends. A controller whose
// previous session finished is reset and reused.
func (c *Controller) Run(ctx context.Context, practice bool) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	if c.state.Phase.Terminal() {
		c.state, _ = Transition(c.state, Event{Kind: EventReset})
	}
	if err := c.applyLocked(Event{Kind: EventStart, Practice: practice}); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.active = true
	c.cancel = cancel
	c.view = ViewModel{
		Phase:        c.state.Phase,
		Practice:     practice,
		Message:      c.phaseMessage(c.state.Phase, 0),
		Instructions: c.device.Instructions,
		Warning:      c.device.OldDeviceWarning,
	}
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.stopStream()
		c.mu.Lock()
		c.active = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	res := &Result{
		SessionID: uuid.NewString(),
		Practice:  practice,
		Device:    c.device,
		StartedAt: c.opts.Clock.Now(),
	}
	log := c.logger.With(zap.String("session_id", res.SessionID), zap.Bool("practice", practice))

	stream, err := acquire(runCtx, c.cam)
	if err != nil {
		if c.stopped(runCtx) {
			return nil, c.abort()
		}
		c.apply(Event{Kind: EventStreamFailed})
		log.Warn("camera acquisition failed", zap.Error(err))
		return nil, err
	}
	c.mu.Lock()
	if c.state.Phase == PhaseCancelled {
		c.mu.Unlock()
		stream.Stop()
		return nil, ErrCancelled
	}
	c.stream = stream
	c.mu.Unlock()

	res.Facing = stream.Facing()
	res.TorchOn = stream.TryEnableTorch()
	log.Info("camera stream acquired", zap.String("facing", string(res.Facing)), zap.Bool("torch", res.TorchOn))

	c.update(func(v *ViewModel) {
		v.Facing = res.Facing
		v.TorchOn = res.TorchOn
	})
	if err := c.apply(Event{Kind: EventStreamReady}); err != nil {
		return nil, c.abort()
	}

	for n := c.opts.CountdownSeconds; n > 0; n-- {
		c.update(func(v *ViewModel) {
			v.Countdown = n
			v.Message = c.phaseMessage(PhaseCountdown, n)
		})
		if err := c.opts.Clock.Sleep(runCtx, c.opts.CountdownTick); err != nil || c.stopped(runCtx) {
			return nil, c.abort()
		}
	}
	if err := c.apply(Event{Kind: EventCountdownDone}); err != nil {
		return nil, c.abort()
	}

	samples, fps, err := c.measure(runCtx, stream)
	if err != nil {
		return nil, err
	}
	c.stopStream()

	red := models.RedSeries(samples)
	res.Samples = samples
	res.FPS = fps
	res.Amplitude = analysis.Amplitude(red)
	res.Analysis = c.opts.Analyzer.Analyze(red, fps)
	res.FinishedAt = c.opts.Clock.Now()
	if practice {
		res.Quality = GradeSignal(res.Amplitude, res.Analysis.Confidence)
	}

	if err := c.apply(Event{Kind: EventMeasureComplete}); err != nil {
		return nil, c.abort()
	}
	log.Info("capture finished",
		zap.Int("samples", len(samples)),
		zap.Float64("fps", fps),
		zap.Int("heart_rate", res.Analysis.HeartRateBPM),
		zap.String("rhythm", string(res.Analysis.Rhythm)),
		zap.Float64("confidence", res.Analysis.Confidence),
	)
	return res, nil
}

// measure samples until the wall-clock deadline and returns the samples with
// the frame rate measured over the whole capture.
func (c *Controller) measure(ctx context.Context, stream Stream) ([]models.Sample, float64, error) {
	clock := c.opts.Clock
	preview := analysis.NewLivePreview(c.opts.PreviewWindow)
	expected := int(c.opts.Duration/c.opts.FrameInterval) + 1
	samples := make([]models.Sample, 0, expected)

	liveFPS := float64(time.Second) / float64(c.opts.FrameInterval)
	start := clock.Now()
	windowStart, windowFrames := start, 0
	var first, last time.Time
	dropped, frame := 0, 0

	for {
		if c.stopped(ctx) {
			return nil, 0, c.abort()
		}
		now := clock.Now()
		elapsed := now.Sub(start)
		if elapsed >= c.opts.Duration {
			break
		}

		img, err := stream.Frame(ctx)
		if err != nil {
			if c.stopped(ctx) {
				return nil, 0, c.abort()
			}
			dropped++
		} else {
			red, green := MeanRGB(img, c.opts.RasterWidth, c.opts.RasterHeight)
			samples = append(samples, models.Sample{Red: red, Green: green, TimestampMs: elapsed.Milliseconds()})
			preview.Push(red)
			if first.IsZero() {
				first = now
			}
			last = now
			windowFrames++

			if w := now.Sub(windowStart); w >= c.opts.FPSWindow {
				liveFPS = float64(windowFrames) / w.Seconds()
				windowStart, windowFrames = now, 0
			}
			finger := ClassifyFinger(red, green)
			bpm := preview.BPM(liveFPS)
			c.update(func(v *ViewModel) {
				v.ElapsedMs = elapsed.Milliseconds()
				v.Progress = min(1, float64(elapsed)/float64(c.opts.Duration))
				v.Finger = finger
				v.FingerMessage = c.opts.Translator.Translate(finger.MessageKey(), c.opts.Locale)
				v.LiveBPM = bpm
				v.FPS = liveFPS
			})
		}

		frame++
		if wait := start.Add(time.Duration(frame) * c.opts.FrameInterval).Sub(clock.Now()); wait > 0 {
			if err := clock.Sleep(ctx, wait); err != nil {
				return nil, 0, c.abort()
			}
		}
	}

	if dropped > 0 {
		c.logger.Warn("dropped frames during capture", zap.Int("dropped", dropped))
	}
	fps := liveFPS
	if span := last.Sub(first); len(samples) > 1 && span > 0 {
		fps = float64(len(samples)-1) / span.Seconds()
	}
	c.update(func(v *ViewModel) {
		v.Progress = 1
		v.FPS = fps
	})
	return samples, fps, nil
}

// Cancel stops the running session. Safe to call at any time and more than once.
func (c *Controller) Cancel() {
	c.mu.Lock()
	changed := false
	if next, err := Transition(c.state, Event{Kind: EventCancel}); err == nil {
		c.state = next
		c.view.Phase = next.Phase
		c.view.Message = c.phaseMessage(next.Phase, 0)
		changed = true
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.stopStream()
	if changed {
		c.notify()
	}
}

// Close tears the controller down. It is equivalent to Cancel.
func (c *Controller) Close() error {
	c.Cancel()
	return nil
}

// Reset returns a finished controller to the instructions phase.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrSessionActive
	}
	err := c.applyLocked(Event{Kind: EventReset})
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

func (c *Controller) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == PhaseCancelled
}

// abort moves the session to Cancelled if it is not there already.
func (c *Controller) abort() error {
	c.Cancel()
	return ErrCancelled
}

func (c *Controller) stopStream() {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (c *Controller) apply(ev Event) error {
	c.mu.Lock()
	err := c.applyLocked(ev)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

func (c *Controller) applyLocked(ev Event) error {
	next, err := Transition(c.state, ev)
	if err != nil {
		return err
	}
	c.state = next
	c.view.Phase = next.Phase
	c.view.Practice = next.Practice
	c.view.Message = c.phaseMessage(next.Phase, 0)
	if next.Phase != PhaseCountdown {
		c.view.Countdown = 0
	}
	return nil
}

func (c *Controller) update(fn func(*ViewModel)) {
	c.mu.Lock()
	fn(&c.view)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	v := c.view
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (c *Controller) phaseMessage(p Phase, seconds int) string {
	return i18n.Format(c.opts.Translator, "capture.phase."+string(p), c.opts.Locale, map[string]string{
		"seconds": strconv.Itoa(seconds),
	})
}

// IsCameraError reports whether err came from stream acquisition.
func IsCameraError(err error) bool {
	return errors.Is(err, ErrCameraUnavailable)
}

func (r *Result) String() string {
	return fmt.Sprintf("session %s: %d bpm %s (confidence %.2f)",
		r.SessionID, r.Analysis.HeartRateBPM, r.Analysis.Rhythm, r.Analysis.Confidence)
}
