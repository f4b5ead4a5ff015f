package capture

import (
	"image"
)

// FingerQuality is the live contact heuristic shown while measuring.
type FingerQuality string

const (
	FingerGood FingerQuality = "good"
	FingerFair FingerQuality = "fair"
	FingerPoor FingerQuality = "poor"
	FingerNone FingerQuality = "none"
)

// MessageKey returns the catalog key describing q.
func (q FingerQuality) MessageKey() string {
	return "capture.finger." + string(q)
}

// ClassifyFinger grades contact from mean channel brightness (0-255). A
// fingertip over a lit lens is bright and strongly red.
func ClassifyFinger(red, green float64) FingerQuality {
	ratio := 0.0
	if green > 0 {
		ratio = red / green
	} else if red > 0 {
		ratio = red
	}
	switch {
	case red > 150 && ratio > 2:
		return FingerGood
	case red > 100 && ratio > 1.3:
		return FingerFair
	case red > 60:
		return FingerPoor
	}
	return FingerNone
}

// SignalQuality grades a practice run.
type SignalQuality string

const (
	QualityGood SignalQuality = "Good"
	QualityFair SignalQuality = "Fair"
	QualityPoor SignalQuality = "Poor"
)

// Practice grading limits. amplitude is max-min of the raw red series.
const (
	goodAmplitude  = 8.0
	goodConfidence = 0.6
	fairAmplitude  = 3.0
	fairConfidence = 0.4
)

func GradeSignal(amplitude, confidence float64) SignalQuality {
	switch {
	case amplitude > goodAmplitude && confidence >= goodConfidence:
		return QualityGood
	case amplitude > fairAmplitude && confidence >= fairConfidence:
		return QualityFair
	}
	return QualityPoor
}

// MeanRGB averages red and green over a raster of at most w x h points
// spread evenly across the image.
func MeanRGB(img image.Image, w, h int) (red, green float64) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	if b.Empty() {
		return 0, 0
	}
	stepX := max(1, b.Dx()/max(1, w))
	stepY := max(1, b.Dy()/max(1, h))

	var rs, gs float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, _, _ := img.At(x, y).RGBA()
			rs += float64(r >> 8)
			gs += float64(g >> 8)
			n++
		}
	}
	return rs / float64(n), gs / float64(n)
}
