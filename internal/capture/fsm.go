package capture

import (
	"errors"
	"fmt"
)

// Phase is a capture-session phase. The string value doubles as the suffix of
// the "capture.phase.*" message key.
type Phase string

const (
	PhaseInstructions   Phase = "instructions"
	PhaseSetup          Phase = "setup"
	PhaseCountdown      Phase = "countdown"
	PhaseMeasuring      Phase = "measuring"
	PhaseDone           Phase = "done"
	PhasePracticeResult Phase = "practice_result"
	PhaseCancelled      Phase = "cancelled"
	PhaseFailed         Phase = "failed"
)

// Terminal reports whether no further progress is possible without a Reset.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhasePracticeResult, PhaseCancelled, PhaseFailed:
		return true
	}
	return false
}

type EventKind int

const (
	EventStart EventKind = iota
	EventStreamReady
	EventStreamFailed
	EventCountdownDone
	EventMeasureComplete
	EventCancel
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStreamReady:
		return "stream_ready"
	case EventStreamFailed:
		return "stream_failed"
	case EventCountdownDone:
		return "countdown_done"
	case EventMeasureComplete:
		return "measure_complete"
	case EventCancel:
		return "cancel"
	case EventReset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event drives Transition. Practice is only read on EventStart.
type Event struct {
	Kind     EventKind
	Practice bool
}

// State is the session state. Practice is fixed at start and carried through
// every later phase.
type State struct {
	Phase    Phase
	Practice bool
}

// InitialState is where every session begins.
func InitialState() State {
	return State{Phase: PhaseInstructions}
}

var ErrInvalidTransition = errors.New("invalid capture transition")

// Transition is the only place phase changes are decided. An event that does
// not apply to the current phase returns the state unchanged together with
// ErrInvalidTransition.
func Transition(s State, ev Event) (State, error) {
	if ev.Kind == EventCancel && !s.Phase.Terminal() {
		return State{Phase: PhaseCancelled, Practice: s.Practice}, nil
	}
	if ev.Kind == EventReset && s.Phase.Terminal() {
		return InitialState(), nil
	}

	next := s
	switch {
	case s.Phase == PhaseInstructions && ev.Kind == EventStart:
		next = State{Phase: PhaseSetup, Practice: ev.Practice}
	case s.Phase == PhaseSetup && ev.Kind == EventStreamReady:
		next.Phase = PhaseCountdown
	case s.Phase == PhaseSetup && ev.Kind == EventStreamFailed:
		next.Phase = PhaseFailed
	case s.Phase == PhaseCountdown && ev.Kind == EventCountdownDone:
		next.Phase = PhaseMeasuring
	case s.Phase == PhaseMeasuring && ev.Kind == EventMeasureComplete:
		next.Phase = PhaseDone
		if s.Practice {
			next.Phase = PhasePracticeResult
		}
	default:
		return s, fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, ev.Kind, s.Phase)
	}
	return next, nil
}
