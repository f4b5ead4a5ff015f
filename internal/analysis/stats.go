package analysis

import (
	"math"
	"sort"
)

// Helpers. All of them return 0 for empty input so no NaN leaks into results.

func sum(s []float64) float64 {
	var t float64
	for _, v := range s {
		t += v
	}
	return t
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return sum(s) / float64(len(s))
}

func median(s []float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	c := make([]float64, n)
	copy(c, s)
	sort.Float64s(c)
	if n%2 == 1 {
		return c[n/2]
	}
	return (c[n/2-1] + c[n/2]) / 2
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(s []float64) float64 {
	n := len(s)
	if n < 2 {
		return 0
	}
	mu := mean(s)
	var ss float64
	for _, v := range s {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func successiveDiffs(s []float64) []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, len(s)-1)
	for i := 1; i < len(s); i++ {
		out[i-1] = s[i] - s[i-1]
	}
	return out
}

func rmssd(rr []float64) float64 {
	diffs := successiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}
	var ss float64
	for _, d := range diffs {
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(diffs)))
}

func pnn50(rr []float64) float64 {
	diffs := successiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}
	count := 0
	for _, d := range diffs {
		if math.Abs(d) > 50 {
			count++
		}
	}
	return float64(count) / float64(len(diffs)) * 100
}

func minMax(s []float64) (lo, hi float64) {
	if len(s) == 0 {
		return 0, 0
	}
	lo, hi = s[0], s[0]
	for _, v := range s[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Amplitude is the peak-to-peak range of a raw series.
func Amplitude(s []float64) float64 {
	lo, hi := minMax(s)
	return hi - lo
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sanitize replaces non-finite samples with the previous finite value.
func sanitize(samples []float64) []float64 {
	out := make([]float64, len(samples))
	var last float64
	for i, v := range samples {
		if finite(v) {
			last = v
		}
		out[i] = last
	}
	return out
}
