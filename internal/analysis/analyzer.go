// Package analysis turns a raw camera brightness series into heart rate, HRV
// metrics and a screening-level rhythm label. Every function here is total:
// degenerate input produces a zero- or low-confidence labeled result instead
// of an error.
package analysis

import (
	"math"

	"ppg-screening/internal/models"
)

// Analyzer is stateless apart from its thresholds and safe for concurrent use.
type Analyzer struct {
	th Thresholds
}

// New creates an Analyzer with the given thresholds.
func New(th Thresholds) *Analyzer {
	return &Analyzer{th: th}
}

// Analyze runs the default analyzer.
func Analyze(samples []float64, fps float64) models.PPGAnalysis {
	return New(DefaultThresholds()).Analyze(samples, fps)
}

// Thresholds returns the parameter set in use.
func (a *Analyzer) Thresholds() Thresholds {
	return a.th
}

// Analyze processes one capture of raw red-channel brightness sampled at fps.
func (a *Analyzer) Analyze(samples []float64, fps float64) models.PPGAnalysis {
	if len(samples) < a.th.MinSamples || !finite(fps) || fps <= 0 {
		return emptyAnalysis(models.RhythmInsufficientData)
	}

	smoothed := smooth(sanitize(samples), a.th.SmoothRadius)
	lo, hi := minMax(smoothed)
	if hi-lo < a.th.MinSignalRange {
		return emptyAnalysis(models.RhythmNoSignal)
	}
	normalized := normalize(smoothed, lo, hi)

	peaks := a.detectPeaks(normalized, fps)
	rr := intervalsMs(peaks, fps)
	valid := make([]float64, 0, len(rr))
	for _, v := range rr {
		if v > a.th.MinRRMs && v < a.th.MaxRRMs {
			valid = append(valid, v)
		}
	}

	medRR := a.th.DefaultRRMs
	if len(valid) > 0 {
		medRR = median(valid)
	}
	hr := int(math.Round(60000 / medRR))

	sdnn := sampleStdDev(valid)
	meanRR := mean(valid)
	var cv float64
	if meanRR > 0 {
		cv = sdnn / meanRR * 100
	}

	res := models.PPGAnalysis{
		HeartRateBPM:       hr,
		RRIntervalsMs:      rr,
		ValidRRIntervalsMs: valid,
		PeakIndices:        peaks,
		SDNNMs:             sdnn,
		RMSSDMs:            rmssd(valid),
		PNN50Percent:       pnn50(valid),
		CVRRPercent:        cv,
	}
	res.Rhythm, res.Confidence = a.classify(res, medRR)
	res.Waveform, res.TimestampsMs = decimateWithTime(normalized, fps, a.th.MaxWaveformPoints)
	return res
}

// classify applies the rhythm rules in order; the first match wins.
func (a *Analyzer) classify(r models.PPGAnalysis, medRR float64) (models.Rhythm, float64) {
	th := a.th
	beats := len(r.ValidRRIntervalsMs)
	switch {
	case beats < th.MinBeats:
		return models.RhythmInsufficientBeats, confidenceInsufficientBeats
	case r.HeartRateBPM > th.TachycardiaBPM:
		return models.RhythmTachycardia, confidenceTachycardia
	case r.HeartRateBPM < th.BradycardiaBPM:
		return models.RhythmBradycardia, confidenceBradycardia
	case r.CVRRPercent > th.AFibCVRR && r.PNN50Percent > th.AFibPNN50 && r.SDNNMs > th.AFibSDNN:
		return models.RhythmPossibleAFib, confidenceAFib
	case r.CVRRPercent > th.IrregularCVRR || r.PNN50Percent > th.IrregularPNN50:
		return models.RhythmIrregular, confidenceIrregular
	}

	short := 0
	for _, v := range r.ValidRRIntervalsMs {
		if v < th.PrematureRatio*medRR {
			short++
		}
	}
	if short > 1 && float64(short) < th.PrematureMaxFraction*float64(beats) {
		return models.RhythmPrematureBeats, confidencePremature
	}

	conf := th.NormalBaseConfidence + float64(beats)/th.NormalBeatsForBonus*th.NormalBonusConfidence
	return models.RhythmNormalSinus, math.Min(th.NormalMaxConfidence, conf)
}

// detectPeaks finds local maxima above an adaptive threshold, keeping at
// least MinPeakDistanceSec between accepted peaks.
func (a *Analyzer) detectPeaks(x []float64, fps float64) []int {
	mu := mean(x)
	threshold := mu + a.th.PeakThresholdFactor*(1-mu)
	minDist := a.th.MinPeakDistanceSec * fps
	k := a.th.PeakNeighborhood

	peaks := []int{}
	last := -1
	for i := k; i < len(x)-k; i++ {
		if x[i] <= threshold {
			continue
		}
		isMax := true
		for j := i - k; j <= i+k; j++ {
			if x[j] > x[i] {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}
		if last >= 0 && float64(i-last) < minDist {
			continue
		}
		peaks = append(peaks, i)
		last = i
	}
	return peaks
}

func intervalsMs(peaks []int, fps float64) []float64 {
	if len(peaks) < 2 {
		return []float64{}
	}
	out := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		out[i-1] = float64(peaks[i]-peaks[i-1]) * 1000 / fps
	}
	return out
}

// smooth is a centered moving average; the window is truncated at the edges.
func smooth(x []float64, radius int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := max(0, i-radius)
		hi := min(len(x)-1, i+radius)
		var s float64
		for j := lo; j <= hi; j++ {
			s += x[j]
		}
		out[i] = s / float64(hi-lo+1)
	}
	return out
}

func normalize(x []float64, lo, hi float64) []float64 {
	out := make([]float64, len(x))
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range x {
		out[i] = (v - lo) / span
	}
	return out
}

// Decimate keeps at most maxPoints evenly strided values.
func Decimate(x []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(x) <= maxPoints {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	step := int(math.Ceil(float64(len(x)) / float64(maxPoints)))
	out := make([]float64, 0, maxPoints)
	for i := 0; i < len(x); i += step {
		out = append(out, x[i])
	}
	return out
}

func decimateWithTime(x []float64, fps float64, maxPoints int) ([]float64, []float64) {
	step := 1
	if maxPoints > 0 && len(x) > maxPoints {
		step = int(math.Ceil(float64(len(x)) / float64(maxPoints)))
	}
	wave := make([]float64, 0, len(x)/step+1)
	ts := make([]float64, 0, len(x)/step+1)
	for i := 0; i < len(x); i += step {
		wave = append(wave, x[i])
		ts = append(ts, float64(i)*1000/fps)
	}
	return wave, ts
}

func emptyAnalysis(label models.Rhythm) models.PPGAnalysis {
	return models.PPGAnalysis{
		RRIntervalsMs:      []float64{},
		ValidRRIntervalsMs: []float64{},
		PeakIndices:        []int{},
		Rhythm:             label,
		Confidence:         0,
		Waveform:           []float64{},
		TimestampsMs:       []float64{},
	}
}
