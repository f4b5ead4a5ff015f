package models

import "time"

// DeviceInfo is the best-effort hardware profile derived from a user-agent-like
// signature. It is recomputed at the start of every session and never stored.
type DeviceInfo struct {
	Model            string `json:"model"`
	Brand            string `json:"brand"`
	OS               string `json:"os"`
	OSVersion        int    `json:"osVersion,omitempty"`
	HasTorch         bool   `json:"hasTorch"`
	IsTablet         bool   `json:"isTablet"`
	CameraPosition   string `json:"cameraPosition"`
	IsOldDevice      bool   `json:"isOldDevice"`
	OldDeviceWarning string `json:"oldDeviceWarning,omitempty"`
	Instructions     string `json:"instructions"`
	InstructionsKey  string `json:"instructionsKey"`
	WarningKey       string `json:"warningKey,omitempty"`
}

// Sample is one captured frame reduced to its mean channel brightness.
type Sample struct {
	Red         float64 `json:"r"`
	Green       float64 `json:"g"`
	TimestampMs int64   `json:"ts"`
}

// RedSeries extracts the red channel, which carries the pulse signal.
func RedSeries(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Red
	}
	return out
}

// Rhythm is the screening-level rhythm label produced by the analyzer.
type Rhythm string

const (
	RhythmNormalSinus    Rhythm = "NORMAL_SINUS"
	RhythmIrregular      Rhythm = "IRREGULAR"
	RhythmTachycardia    Rhythm = "TACHYCARDIA"
	RhythmBradycardia    Rhythm = "BRADYCARDIA"
	RhythmPossibleAFib   Rhythm = "POSSIBLE_AFIB"
	RhythmPrematureBeats Rhythm = "PREMATURE_BEATS"

	// Descriptive labels for results that could not be classified.
	RhythmInsufficientData  Rhythm = "INSUFFICIENT_DATA"
	RhythmNoSignal          Rhythm = "NO_SIGNAL"
	RhythmInsufficientBeats Rhythm = "INSUFFICIENT_BEATS"
)

// PPGAnalysis is the result of one analyzer run over a capture.
// RRIntervalsMs holds every consecutive peak distance; ValidRRIntervalsMs is the
// physiologically plausible subset that drives heart rate, HRV and rhythm.
type PPGAnalysis struct {
	HeartRateBPM       int       `json:"heartRateBpm"`
	RRIntervalsMs      []float64 `json:"rrIntervalsMs"`
	ValidRRIntervalsMs []float64 `json:"validRrIntervalsMs"`
	PeakIndices        []int     `json:"peakIndices"`
	SDNNMs             float64   `json:"sdnnMs"`
	RMSSDMs            float64   `json:"rmssdMs"`
	PNN50Percent       float64   `json:"pnn50Percent"`
	CVRRPercent        float64   `json:"cvRrPercent"`
	Rhythm             Rhythm    `json:"rhythmClassification"`
	Confidence         float64   `json:"confidence"`
	Waveform           []float64 `json:"decimatedWaveform"`
	TimestampsMs       []float64 `json:"timestampsMs"`
}

// Method records how a reading was taken.
type Method string

const (
	MethodManual    Method = "MANUAL"
	MethodCameraPPG Method = "CAMERA_PPG"
)

// HRV is the variability triple kept with a camera reading.
type HRV struct {
	SDNN  float64 `json:"sdnn"`
	RMSSD float64 `json:"rmssd"`
	PNN50 float64 `json:"pnn50"`
}

// PPGSignal is the JSON context stored next to a camera reading.
type PPGSignal struct {
	Device      string    `json:"device"`
	Camera      string    `json:"camera"`
	FPS         float64   `json:"fps"`
	RRIntervals []float64 `json:"rrIntervals"`
	HRV         HRV       `json:"hrv"`
	Rhythm      Rhythm    `json:"rhythm"`
	Confidence  float64   `json:"confidence"`
	Waveform    []float64 `json:"waveform"`
	Attempts    int       `json:"attempts,omitempty"`
}

// BPReading is created once and never mutated.
type BPReading struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Systolic     int        `json:"systolic"`
	Diastolic    int        `json:"diastolic"`
	HeartRateBPM *int       `json:"heartRateBpm,omitempty"`
	Method       Method     `json:"method"`
	Confidence   *float64   `json:"confidence,omitempty"`
	PPGSignal    *PPGSignal `json:"ppgSignal,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	MeasuredAt   time.Time  `json:"measuredAt"`
}

// BPCategory is derived on every display and never stored.
type BPCategory string

const (
	CategoryLow      BPCategory = "Low"
	CategoryNormal   BPCategory = "Normal"
	CategoryElevated BPCategory = "Elevated"
	CategoryStage1   BPCategory = "Stage 1"
	CategoryStage2   BPCategory = "Stage 2"
	CategoryCrisis   BPCategory = "Crisis"
)

// Severity ranks the category from 0 (Normal) to 5 (Crisis).
func (c BPCategory) Severity() int {
	switch c {
	case CategoryCrisis:
		return 5
	case CategoryStage2:
		return 4
	case CategoryStage1:
		return 3
	case CategoryElevated:
		return 2
	case CategoryLow:
		return 1
	default:
		return 0
	}
}

// BPSummary is the classified pressure shown with a report.
type BPSummary struct {
	Systolic  int        `json:"systolic"`
	Diastolic int        `json:"diastolic"`
	MAP       float64    `json:"map"`
	Category  BPCategory `json:"category"`
	Severity  int        `json:"severity"`
}

// RepeatStatus is the position in a repeat series, e.g. 2 of 3.
type RepeatStatus struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// ReportPayload is handed to the rendering side after every capture.
type ReportPayload struct {
	UserID    string       `json:"userId"`
	ReadingID string       `json:"readingId,omitempty"`
	Persisted bool         `json:"persisted"`
	Practice  bool         `json:"practice,omitempty"`
	Analysis  PPGAnalysis  `json:"analysis"`
	BP        BPSummary    `json:"bp"`
	Repeat    RepeatStatus `json:"repeat"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}
