package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ppg-screening/internal/analysis"
	"ppg-screening/internal/i18n"
	"ppg-screening/internal/models"
	"ppg-screening/internal/profiler"
	"ppg-screening/internal/report"
	"ppg-screening/internal/workflow"

	"go.uber.org/zap"
)

const (
	ActionFinish = "finish"
	ActionReset  = "reset"
)

var ErrMissingUser = errors.New("missing user id")

// ReadingStore persists readings.
type ReadingStore interface {
	CreateReading(ctx context.Context, r models.BPReading) (string, error)
	ListReadings(ctx context.Context, userID string, sinceDays int) ([]models.BPReading, error)
}

// ReportPublisher delivers a finished payload somewhere the user can see it.
type ReportPublisher interface {
	Publish(ctx context.Context, p models.ReportPayload) error
}

// CaptureOutcome is an analyzed capture entering the workflow, either from a
// phone upload or from a local capture session.
type CaptureOutcome struct {
	UserID    string
	Locale    string
	Practice  bool
	Analysis  models.PPGAnalysis
	Amplitude float64
	Device    string
	Camera    string
	FPS       float64
	At        time.Time
}

// ScreeningProcessor owns the per-user repeat workflows and fans finished
// reports out to the publishers.
type ScreeningProcessor struct {
	store      ReadingStore
	assembler  *report.Assembler
	analyzer   *analysis.Analyzer
	tr         i18n.Translator
	publishers []ReportPublisher
	logger     *zap.Logger

	workflowTTL time.Duration
	now         func() time.Time

	sessions   map[string]*workflow.Session
	sessionsMu sync.Mutex
}

type ProcessorOptions struct {
	Analyzer    *analysis.Analyzer
	Translator  i18n.Translator
	WorkflowTTL time.Duration
}

func NewScreeningProcessor(store ReadingStore, assembler *report.Assembler, opts ProcessorOptions, logger *zap.Logger, publishers ...ReportPublisher) *ScreeningProcessor {
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.New(analysis.DefaultThresholds())
	}
	if opts.Translator == nil {
		opts.Translator = i18n.Default()
	}
	if opts.WorkflowTTL <= 0 {
		opts.WorkflowTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if assembler == nil {
		assembler = report.NewAssembler(nil)
	}
	return &ScreeningProcessor{
		store:       store,
		assembler:   assembler,
		analyzer:    opts.Analyzer,
		tr:          opts.Translator,
		publishers:  publishers,
		logger:      logger,
		workflowTTL: opts.WorkflowTTL,
		now:         time.Now,
		sessions:    make(map[string]*workflow.Session),
	}
}

// HandleCaptureMessage consumes one capture upload from Kafka. Malformed
// messages are logged and dropped.
func (p *ScreeningProcessor) HandleCaptureMessage(msgValue []byte) {
	var msg models.CaptureUpload
	if err := json.Unmarshal(msgValue, &msg); err != nil {
		p.logger.Warn("failed to unmarshal capture upload", zap.Error(err), zap.Int("bytes", len(msgValue)))
		return
	}
	if _, err := p.SubmitCapture(context.Background(), msg); err != nil {
		p.logger.Error("capture upload not processed",
			zap.String("user_id", msg.UserID),
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
	}
}

// SubmitCapture analyzes an uploaded raw sample stream.
func (p *ScreeningProcessor) SubmitCapture(ctx context.Context, msg models.CaptureUpload) (*models.ReportPayload, error) {
	if msg.UserID == "" {
		return nil, ErrMissingUser
	}
	device := profiler.New(p.tr, p.locale(msg.Locale)).Profile(msg.DeviceSignature)
	red := models.RedSeries(msg.Samples)
	fps := analysis.MeasuredFPS(msg.Samples, msg.FPS)
	an := p.analyzer.Analyze(red, fps)

	p.logger.Info("capture upload analyzed",
		zap.String("user_id", msg.UserID),
		zap.String("session_id", msg.SessionID),
		zap.String("device", device.Model),
		zap.Int("samples", len(msg.Samples)),
		zap.Float64("fps", fps),
		zap.Int("heart_rate", an.HeartRateBPM),
		zap.String("rhythm", string(an.Rhythm)),
	)
	return p.ProcessCapture(ctx, CaptureOutcome{
		UserID:    msg.UserID,
		Locale:    msg.Locale,
		Practice:  msg.Practice,
		Analysis:  an,
		Amplitude: analysis.Amplitude(red),
		Device:    device.Model,
		Camera:    msg.Camera,
		FPS:       fps,
		At:        p.now(),
	})
}

// ProcessCapture runs an analyzed capture through the repeat workflow,
// persists when the workflow says so, and publishes the report. Practice
// captures are only estimated and returned.
func (p *ScreeningProcessor) ProcessCapture(ctx context.Context, c CaptureOutcome) (*models.ReportPayload, error) {
	if c.UserID == "" {
		return nil, ErrMissingUser
	}
	if c.At.IsZero() {
		c.At = p.now()
	}
	attempt := p.assembler.Attempt(c.Analysis, c.Amplitude, c.Device, c.Camera, c.FPS, c.At)

	if c.Practice {
		payload := report.Payload(c.UserID, "", c.Analysis, attempt.Systolic, attempt.Diastolic, models.RepeatStatus{}, true, p.now())
		p.logger.Debug("practice capture discarded", zap.String("user_id", c.UserID))
		return &payload, nil
	}

	p.sessionsMu.Lock()
	s, ok := p.sessions[c.UserID]
	if !ok {
		s = workflow.NewSession(c.UserID, c.At)
		p.sessions[c.UserID] = s
	}
	out := s.Add(attempt)
	p.sessionsMu.Unlock()

	if !out.Persist {
		payload := report.Payload(c.UserID, "", out.Analysis, attempt.Systolic, attempt.Diastolic, out.Status, false, p.now())
		payload.Message = i18n.Format(p.tr, "report.repeat_suggested", p.locale(c.Locale), map[string]string{
			"count": strconv.Itoa(out.Status.Count),
			"total": strconv.Itoa(out.Status.Total),
		})
		p.logger.Info("repeat suggested",
			zap.String("user_id", c.UserID),
			zap.Int("attempt", out.Status.Count),
			zap.Float64("confidence", c.Analysis.Confidence),
			zap.String("rhythm", string(c.Analysis.Rhythm)),
		)
		p.publish(ctx, payload)
		return &payload, nil
	}
	return p.persistOutcome(ctx, c.UserID, s, out)
}

// persistOutcome stores the outcome and only then drops the series, so a
// failed save leaves it in place for FinishSession.
func (p *ScreeningProcessor) persistOutcome(ctx context.Context, userID string, s *workflow.Session, out workflow.Outcome) (*models.ReportPayload, error) {
	reading, err := report.CameraReading(userID, out)
	if err != nil {
		p.dropSession(userID, s)
		return nil, err
	}
	id, err := p.store.CreateReading(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to persist camera reading: %w", err)
	}
	p.dropSession(userID, s)

	payload := report.Payload(userID, id, out.Analysis, out.Systolic, out.Diastolic, out.Status, false, p.now())
	p.logger.Info("camera reading persisted",
		zap.String("user_id", userID),
		zap.String("reading_id", id),
		zap.Int("systolic", out.Systolic),
		zap.Int("diastolic", out.Diastolic),
		zap.Int("attempts", len(out.Attempts)),
	)
	p.publish(ctx, payload)
	return &payload, nil
}

func (p *ScreeningProcessor) dropSession(userID string, s *workflow.Session) {
	p.sessionsMu.Lock()
	s.Commit()
	if p.sessions[userID] == s {
		delete(p.sessions, userID)
	}
	p.sessionsMu.Unlock()
}

// HandleManualEntry consumes a typed-in cuff reading.
func (p *ScreeningProcessor) HandleManualEntry(payload []byte) {
	var msg models.ManualEntryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.logger.Warn("failed to unmarshal manual entry", zap.Error(err))
		return
	}
	if _, err := p.SubmitManualEntry(context.Background(), msg); err != nil {
		p.logger.Warn("manual entry rejected", zap.String("user_id", msg.UserID), zap.Error(err))
	}
}

// SubmitManualEntry validates, then persists. Nothing reaches the store when
// validation fails.
func (p *ScreeningProcessor) SubmitManualEntry(ctx context.Context, msg models.ManualEntryMessage) (*models.ReportPayload, error) {
	if msg.UserID == "" {
		return nil, ErrMissingUser
	}
	reading, err := report.ManualReading(msg, p.now())
	if err != nil {
		return nil, err
	}
	id, err := p.store.CreateReading(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to persist manual reading: %w", err)
	}
	an := models.PPGAnalysis{}
	if msg.HeartRateBPM != nil {
		an.HeartRateBPM = *msg.HeartRateBPM
	}
	payload := report.Payload(msg.UserID, id, an, msg.Systolic, msg.Diastolic, models.RepeatStatus{Count: 1, Total: 1}, false, p.now())
	p.logger.Info("manual reading persisted", zap.String("user_id", msg.UserID), zap.String("reading_id", id))
	p.publish(ctx, payload)
	return &payload, nil
}

// HandleSessionAction consumes a finish/reset command for a repeat series.
func (p *ScreeningProcessor) HandleSessionAction(payload []byte) {
	var msg models.SessionActionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.logger.Warn("failed to unmarshal session action", zap.Error(err))
		return
	}
	switch msg.Action {
	case ActionFinish:
		if _, err := p.FinishSession(context.Background(), msg.UserID); err != nil {
			p.logger.Warn("finish session failed", zap.String("user_id", msg.UserID), zap.Error(err))
		}
	case ActionReset:
		p.ResetSession(msg.UserID)
	default:
		p.logger.Warn("unknown session action", zap.String("user_id", msg.UserID), zap.String("action", msg.Action))
	}
}

// FinishSession persists the average of an unfinished series.
func (p *ScreeningProcessor) FinishSession(ctx context.Context, userID string) (*models.ReportPayload, error) {
	p.sessionsMu.Lock()
	s, ok := p.sessions[userID]
	if !ok {
		p.sessionsMu.Unlock()
		return nil, workflow.ErrNoAttempts
	}
	out, err := s.Finish()
	if err != nil {
		delete(p.sessions, userID)
		p.sessionsMu.Unlock()
		return nil, err
	}
	p.sessionsMu.Unlock()
	return p.persistOutcome(ctx, userID, s, out)
}

// ResetSession discards a user's series.
func (p *ScreeningProcessor) ResetSession(userID string) {
	p.sessionsMu.Lock()
	_, ok := p.sessions[userID]
	delete(p.sessions, userID)
	p.sessionsMu.Unlock()
	if ok {
		p.logger.Info("repeat series discarded", zap.String("user_id", userID))
	}
}

// ActiveSessions returns the number of unfinished series.
func (p *ScreeningProcessor) ActiveSessions() int {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	return len(p.sessions)
}

// RunHousekeepingCycle drops series idle for longer than the workflow TTL.
func (p *ScreeningProcessor) RunHousekeepingCycle(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	p.logger.Info("housekeeping cycle started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("housekeeping cycle stopping")
			return
		case <-ticker.C:
			pruned := p.PruneStale()
			p.logger.Debug(p.housekeepingReport(pruned))
		}
	}
}

// PruneStale removes idle series and returns their user ids.
func (p *ScreeningProcessor) PruneStale() []string {
	cutoff := p.now().Add(-p.workflowTTL)
	var pruned []string
	p.sessionsMu.Lock()
	for userID, s := range p.sessions {
		if s.UpdatedAt().Before(cutoff) {
			pruned = append(pruned, userID)
			delete(p.sessions, userID)
		}
	}
	remaining := len(p.sessions)
	p.sessionsMu.Unlock()

	sort.Strings(pruned)
	if len(pruned) > 0 {
		p.logger.Info("pruned stale repeat series", zap.Strings("user_ids", pruned), zap.Int("remaining", remaining))
	}
	return pruned
}

func (p *ScreeningProcessor) housekeepingReport(pruned []string) string {
	var b strings.Builder
	b.WriteString("--- Housekeeping Report ---\n")
	b.WriteString(fmt.Sprintf("%-20s | %-8s | %-10s\n", "User", "Attempts", "Idle"))
	b.WriteString(strings.Repeat("-", 44) + "\n")

	now := p.now()
	p.sessionsMu.Lock()
	if len(p.sessions) == 0 {
		b.WriteString("No repeat series in progress.\n")
	}
	for userID, s := range p.sessions {
		b.WriteString(fmt.Sprintf("%-20s | %-8d | %-10s\n", userID, s.Count(), now.Sub(s.UpdatedAt()).Truncate(time.Second)))
	}
	p.sessionsMu.Unlock()

	b.WriteString(fmt.Sprintf("Pruned %d stale series.", len(pruned)))
	return b.String()
}

// History returns a user's stored readings.
func (p *ScreeningProcessor) History(ctx context.Context, userID string, sinceDays int) ([]models.BPReading, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return p.store.ListReadings(ctx, userID, sinceDays)
}

func (p *ScreeningProcessor) publish(ctx context.Context, payload models.ReportPayload) {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, payload); err != nil {
			p.logger.Error("failed to publish report",
				zap.String("user_id", payload.UserID),
				zap.String("publisher", fmt.Sprintf("%T", pub)),
				zap.Error(err),
			)
		}
	}
}

func (p *ScreeningProcessor) locale(l string) string {
	if l == "" {
		return i18n.DefaultLocale
	}
	return l
}
