package analysis

// Thresholds holds every tunable constant of the analyzer. The rhythm limits
// are heuristics without a cited clinical derivation and are expected to be
// adjusted per deployment.
type Thresholds struct {
	MinSamples          int     // below this no peak detection is attempted
	SmoothRadius        int     // centered moving average radius
	MinSignalRange      float64 // smoothed max-min below this is treated as flat
	PeakThresholdFactor float64 // threshold = mean + factor*(1-mean)
	PeakNeighborhood    int     // local maximum over ±N samples
	MinPeakDistanceSec  float64
	MinRRMs             float64 // exclusive
	MaxRRMs             float64 // exclusive
	DefaultRRMs         float64 // used when no valid interval exists

	MinBeats              int
	TachycardiaBPM        int
	BradycardiaBPM        int
	AFibCVRR              float64
	AFibPNN50             float64
	AFibSDNN              float64
	IrregularCVRR         float64
	IrregularPNN50        float64
	PrematureRatio        float64 // interval shorter than ratio*median is premature
	PrematureMaxFraction  float64
	NormalBaseConfidence  float64
	NormalMaxConfidence   float64
	NormalBeatsForBonus   float64
	NormalBonusConfidence float64

	MaxWaveformPoints int
}

// DefaultThresholds returns the reference parameter set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSamples:          60,
		SmoothRadius:        2,
		MinSignalRange:      1e-6,
		PeakThresholdFactor: 0.3,
		PeakNeighborhood:    2,
		MinPeakDistanceSec:  0.35,
		MinRRMs:             300,
		MaxRRMs:             2000,
		DefaultRRMs:         857,

		MinBeats:              5,
		TachycardiaBPM:        100,
		BradycardiaBPM:        60,
		AFibCVRR:              15,
		AFibPNN50:             30,
		AFibSDNN:              80,
		IrregularCVRR:         10,
		IrregularPNN50:        20,
		PrematureRatio:        0.75,
		PrematureMaxFraction:  0.30,
		NormalBaseConfidence:  0.5,
		NormalMaxConfidence:   0.85,
		NormalBeatsForBonus:   30,
		NormalBonusConfidence: 0.2,

		MaxWaveformPoints: 600,
	}
}

// Fixed confidences of the non-normal rules.
const (
	confidenceInsufficientBeats = 0.2
	confidenceTachycardia       = 0.75
	confidenceBradycardia       = 0.7
	confidenceAFib              = 0.6
	confidenceIrregular         = 0.6
	confidencePremature         = 0.55
)
