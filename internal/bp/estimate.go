package bp

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Estimate limits and coefficients.
const (
	minEstSystolic   = 90
	maxEstSystolic   = 180
	minEstDiastolic  = 55
	maxEstDiastolic  = 120
	amplitudeCeiling = 50.0
)

// Estimator maps heart rate and raw pulse amplitude onto a plausible
// systolic/diastolic pair.
//
// This is a deliberately coarse heuristic, not a validated blood-pressure
// algorithm. A camera pulse carries no calibrated pressure information; the
// numbers only move in the direction population averages suggest and must
// never stand in for a cuff measurement.
type Estimator struct {
	jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEstimator creates an estimator. jitter is the maximum symmetric noise in
// mmHg added to systolic (diastolic gets two thirds of it); 0 makes the
// estimate fully deterministic. The seed makes noisy runs reproducible.
func NewEstimator(seed uint64, jitter float64) *Estimator {
	return &Estimator{
		jitter: math.Max(0, jitter),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Estimate returns systolic and diastolic in mmHg. amplitude is max-min of the
// raw red series in brightness units.
func (e *Estimator) Estimate(heartRate int, amplitude float64) (systolic, diastolic int) {
	hr := float64(heartRate)
	baseSys := 110 + (hr-70)*0.5
	baseDia := 70 + (hr-70)*0.3

	norm := 0.0
	if amplitude > 0 && !math.IsInf(amplitude, 0) {
		norm = math.Min(amplitude/amplitudeCeiling, 1)
	}
	ampFactor := (1 - norm) * 10

	sysJitter, diaJitter := e.noise()
	sys := baseSys + ampFactor + sysJitter
	dia := baseDia + ampFactor*0.6 + diaJitter

	systolic = clamp(int(math.Round(sys)), minEstSystolic, maxEstSystolic)
	diastolic = clamp(int(math.Round(dia)), minEstDiastolic, maxEstDiastolic)
	if diastolic >= systolic {
		diastolic = systolic - 1
	}
	return systolic, diastolic
}

func (e *Estimator) noise() (float64, float64) {
	if e.jitter == 0 {
		return 0, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := (e.rng.Float64()*2 - 1) * e.jitter
	d := (e.rng.Float64()*2 - 1) * e.jitter * 2 / 3
	return s, d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
