// Package workflow implements the repeat-and-average flow that runs after
// every real capture: a clean first result is kept as is, an unclear or
// irregular one starts a series of up to three captures that are averaged.
package workflow

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ppg-screening/internal/models"
)

const (
	// MaxAttempts is the size of a repeat series.
	MaxAttempts = 3
	// MinConfidence is the analyzer confidence below which a repeat is offered.
	MinConfidence = 0.5
)

var ErrNoAttempts = errors.New("no captures in repeat series")

// NeedsRepeat reports whether a capture should start or continue a series.
func NeedsRepeat(a models.PPGAnalysis) bool {
	return a.Confidence < MinConfidence || a.Rhythm != models.RhythmNormalSinus
}

// Attempt is one real capture with its estimated pressure.
type Attempt struct {
	Systolic     int
	Diastolic    int
	HeartRateBPM int
	Analysis     models.PPGAnalysis
	Amplitude    float64
	Device       string
	Camera       string
	FPS          float64
	At           time.Time
}

// Outcome tells the caller what to do after a capture. When Persist is set
// the Systolic/Diastolic/HeartRateBPM fields hold the values to store and
// Analysis is the most recent capture's analysis.
type Outcome struct {
	Persist         bool
	RepeatSuggested bool
	Systolic        int
	Diastolic       int
	HeartRateBPM    int
	Analysis        models.PPGAnalysis
	Latest          Attempt
	Attempts        []Attempt
	Notes           string
	Status          models.RepeatStatus
}

// Session tracks one user's repeat series. It is not safe for concurrent use.
type Session struct {
	UserID    string
	attempts  []Attempt
	triggered bool
	updatedAt time.Time
}

func NewSession(userID string, now time.Time) *Session {
	return &Session{UserID: userID, updatedAt: now}
}

// Count is the number of captures in the current series.
func (s *Session) Count() int { return len(s.attempts) }

// Triggered reports whether a series is in progress.
func (s *Session) Triggered() bool { return s.triggered }

func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// Add records a capture and decides whether to persist now or ask for
// another one. A persist outcome stays in the session until Commit, so a
// failed save can be retried with Finish.
func (s *Session) Add(a Attempt) Outcome {
	if !a.At.IsZero() {
		s.updatedAt = a.At
	}
	switch {
	case !s.triggered:
		// an unsaved clean capture is superseded
		s.attempts = s.attempts[:0]
	case len(s.attempts) >= MaxAttempts:
		s.attempts = s.attempts[1:]
	}
	s.attempts = append(s.attempts, a)

	if !s.triggered {
		if !NeedsRepeat(a.Analysis) {
			return s.complete()
		}
		s.triggered = true
	}
	if len(s.attempts) >= MaxAttempts {
		return s.complete()
	}
	return Outcome{
		RepeatSuggested: true,
		Analysis:        a.Analysis,
		Latest:          a,
		Attempts:        append([]Attempt(nil), s.attempts...),
		Status:          models.RepeatStatus{Count: len(s.attempts), Total: MaxAttempts},
	}
}

// Finish ends a series early and persists the average of what was captured.
func (s *Session) Finish() (Outcome, error) {
	if len(s.attempts) == 0 {
		return Outcome{}, ErrNoAttempts
	}
	return s.complete(), nil
}

// Commit clears the series once its outcome has been stored.
func (s *Session) Commit() {
	s.Reset()
}

// Reset discards the series.
func (s *Session) Reset() {
	s.attempts = nil
	s.triggered = false
}

func (s *Session) complete() Outcome {
	attempts := append([]Attempt(nil), s.attempts...)
	latest := attempts[len(attempts)-1]
	sys, dia, hr := Average(attempts)
	total := 1
	if s.triggered {
		total = MaxAttempts
	}
	out := Outcome{
		Persist:      true,
		Systolic:     sys,
		Diastolic:    dia,
		HeartRateBPM: hr,
		Analysis:     latest.Analysis,
		Latest:       latest,
		Attempts:     attempts,
		Notes:        Notes(attempts),
		Status:       models.RepeatStatus{Count: len(attempts), Total: total},
	}
	return out
}

// Average returns the rounded arithmetic means of the attempts.
func Average(attempts []Attempt) (systolic, diastolic, heartRate int) {
	if len(attempts) == 0 {
		return 0, 0, 0
	}
	var ss, ds, hs float64
	for _, a := range attempts {
		ss += float64(a.Systolic)
		ds += float64(a.Diastolic)
		hs += float64(a.HeartRateBPM)
	}
	n := float64(len(attempts))
	return int(math.Round(ss / n)), int(math.Round(ds / n)), int(math.Round(hs / n))
}

// Notes lists the individual readings behind an averaged value. A single
// reading needs no note.
func Notes(attempts []Attempt) string {
	if len(attempts) < 2 {
		return ""
	}
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = fmt.Sprintf("%d/%d HR %d (%s)", a.Systolic, a.Diastolic, a.HeartRateBPM, a.Analysis.Rhythm)
	}
	return fmt.Sprintf("Average of %d camera readings: %s", len(attempts), strings.Join(parts, "; "))
}
