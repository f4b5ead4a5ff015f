package analysis

import (
	"math"

	"ppg-screening/internal/models"
)

// PreviewWindow is the number of recent samples the live estimate looks at.
const PreviewWindow = 150

// LivePreview is the naive on-screen heart rate shown while measuring. It is
// informational only; the persisted heart rate always comes from Analyze.
type LivePreview struct {
	buf *RingFloat
}

func NewLivePreview(window int) *LivePreview {
	return &LivePreview{buf: NewRingFloat(window)}
}

func (p *LivePreview) Push(red float64) {
	if !finite(red) {
		return
	}
	p.buf.Push(red)
}

func (p *LivePreview) Reset() {
	p.buf.Reset()
}

// BPM counts local maxima above the window mean and scales to a minute.
// Returns 0 until at least two seconds of samples are buffered.
func (p *LivePreview) BPM(fps float64) int {
	if fps <= 0 {
		return 0
	}
	x := p.buf.Slice()
	if float64(len(x)) < 2*fps || len(x) < 3 {
		return 0
	}
	x = smooth(x, 2)
	mu := mean(x)
	minGap := int(0.35 * fps)
	count, last := 0, -minGap-1
	for i := 1; i < len(x)-1; i++ {
		if x[i] > mu && x[i] > x[i-1] && x[i] >= x[i+1] && i-last > minGap {
			count++
			last = i
		}
	}
	seconds := float64(len(x)) / fps
	return int(math.Round(float64(count) * 60 / seconds))
}

// MeasuredFPS derives the frame rate from sample timestamps as (n-1)/span.
// It returns fallback when there are fewer than two samples or the
// timestamps do not advance.
func MeasuredFPS(samples []models.Sample, fallback float64) float64 {
	if len(samples) < 2 {
		return fallback
	}
	span := samples[len(samples)-1].TimestampMs - samples[0].TimestampMs
	if span <= 0 {
		return fallback
	}
	return float64(len(samples)-1) * 1000 / float64(span)
}
