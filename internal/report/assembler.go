// Package report turns analyzer output and workflow decisions into the
// persisted BPReading and the payload shown to the user.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ppg-screening/internal/analysis"
	"ppg-screening/internal/bp"
	"ppg-screening/internal/models"
	"ppg-screening/internal/workflow"
)

// MaxStoredWaveform caps the waveform kept inside a persisted PPGSignal.
const MaxStoredWaveform = 300

// Assembler owns the BP estimator so every estimate in a process shares one
// seeded source.
type Assembler struct {
	estimator *bp.Estimator
}

func NewAssembler(est *bp.Estimator) *Assembler {
	if est == nil {
		est = bp.NewEstimator(1, 0)
	}
	return &Assembler{estimator: est}
}

// Estimate derives systolic and diastolic from a capture.
func (a *Assembler) Estimate(an models.PPGAnalysis, amplitude float64) (systolic, diastolic int) {
	return a.estimator.Estimate(an.HeartRateBPM, amplitude)
}

// Attempt wraps one capture as a workflow attempt with its BP estimate.
func (a *Assembler) Attempt(an models.PPGAnalysis, amplitude float64, device, camera string, fps float64, at time.Time) workflow.Attempt {
	sys, dia := a.Estimate(an, amplitude)
	return workflow.Attempt{
		Systolic:     sys,
		Diastolic:    dia,
		HeartRateBPM: an.HeartRateBPM,
		Analysis:     an,
		Amplitude:    amplitude,
		Device:       device,
		Camera:       camera,
		FPS:          fps,
		At:           at,
	}
}

// SignalFromAnalysis builds the stored signal context for a camera reading.
func SignalFromAnalysis(an models.PPGAnalysis, device, camera string, fps float64, attempts int) models.PPGSignal {
	rr := an.ValidRRIntervalsMs
	if rr == nil {
		rr = []float64{}
	}
	return models.PPGSignal{
		Device:      device,
		Camera:      camera,
		FPS:         fps,
		RRIntervals: append([]float64(nil), rr...),
		HRV: models.HRV{
			SDNN:  an.SDNNMs,
			RMSSD: an.RMSSDMs,
			PNN50: an.PNN50Percent,
		},
		Rhythm:     an.Rhythm,
		Confidence: an.Confidence,
		Waveform:   analysis.Decimate(an.Waveform, MaxStoredWaveform),
		Attempts:   attempts,
	}
}

// EncodeSignal serializes a signal for storage, enforcing the waveform cap.
func EncodeSignal(sig models.PPGSignal) ([]byte, error) {
	if len(sig.Waveform) > MaxStoredWaveform {
		sig.Waveform = analysis.Decimate(sig.Waveform, MaxStoredWaveform)
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ppg signal: %w", err)
	}
	return data, nil
}

// DecodeSignal parses a stored signal. Empty input yields nil.
func DecodeSignal(data []byte) (*models.PPGSignal, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var sig models.PPGSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode ppg signal: %w", err)
	}
	return &sig, nil
}

// CameraReading builds the reading to persist for a workflow outcome.
func CameraReading(userID string, out workflow.Outcome) (models.BPReading, error) {
	if !out.Persist {
		return models.BPReading{}, fmt.Errorf("outcome for user %s is not ready to persist", userID)
	}
	if err := bp.Validate(out.Systolic, out.Diastolic); err != nil {
		return models.BPReading{}, err
	}
	latest := out.Latest
	sig := SignalFromAnalysis(out.Analysis, latest.Device, latest.Camera, latest.FPS, len(out.Attempts))
	hr := out.HeartRateBPM
	conf := out.Analysis.Confidence
	measuredAt := latest.At
	if measuredAt.IsZero() {
		measuredAt = time.Now()
	}
	r := models.BPReading{
		UserID:       userID,
		Systolic:     out.Systolic,
		Diastolic:    out.Diastolic,
		HeartRateBPM: &hr,
		Method:       models.MethodCameraPPG,
		Confidence:   &conf,
		PPGSignal:    &sig,
		MeasuredAt:   measuredAt.UTC(),
	}
	if out.Notes != "" {
		notes := out.Notes
		r.Notes = &notes
	}
	return r, nil
}

// ManualReading validates a typed-in cuff reading. Nothing is built when the
// values are implausible.
func ManualReading(msg models.ManualEntryMessage, now time.Time) (models.BPReading, error) {
	if err := bp.Validate(msg.Systolic, msg.Diastolic); err != nil {
		return models.BPReading{}, err
	}
	measuredAt := now
	if msg.MeasuredAt > 0 {
		measuredAt = time.UnixMilli(msg.MeasuredAt)
	}
	r := models.BPReading{
		UserID:       msg.UserID,
		Systolic:     msg.Systolic,
		Diastolic:    msg.Diastolic,
		HeartRateBPM: msg.HeartRateBPM,
		Method:       models.MethodManual,
		MeasuredAt:   measuredAt.UTC(),
	}
	if msg.Notes != "" {
		notes := msg.Notes
		r.Notes = &notes
	}
	return r, nil
}

// Summary classifies a pressure pair for display.
func Summary(systolic, diastolic int) models.BPSummary {
	c := bp.Classify(systolic, diastolic)
	return models.BPSummary{
		Systolic:  systolic,
		Diastolic: diastolic,
		MAP:       bp.MAP(systolic, diastolic),
		Category:  c.Category,
		Severity:  c.Severity,
	}
}

// Payload assembles what the user sees after a capture. readingID is empty
// when nothing was persisted.
func Payload(userID, readingID string, an models.PPGAnalysis, systolic, diastolic int, status models.RepeatStatus, practice bool, at time.Time) models.ReportPayload {
	return models.ReportPayload{
		UserID:    userID,
		ReadingID: readingID,
		Persisted: readingID != "",
		Practice:  practice,
		Analysis:  an,
		BP:        Summary(systolic, diastolic),
		Repeat:    status,
		Timestamp: at.UnixMilli(),
	}
}
