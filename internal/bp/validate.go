package bp

import (
	"errors"
	"fmt"
)

// Plausibility bounds applied before anything is persisted.
const (
	MinSystolic  = 50
	MaxSystolic  = 300
	MinDiastolic = 30
	MaxDiastolic = 300
)

var ErrImplausibleReading = errors.New("implausible blood pressure reading")

// ValidationError describes why a reading was rejected.
type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrImplausibleReading
}

// Validate rejects readings outside the plausibility bounds or with a
// diastolic value not below systolic.
func Validate(systolic, diastolic int) error {
	if systolic < MinSystolic || systolic > MaxSystolic {
		return &ValidationError{Field: "systolic", Value: systolic,
			Reason: fmt.Sprintf("must be within [%d,%d]", MinSystolic, MaxSystolic)}
	}
	if diastolic < MinDiastolic || diastolic > MaxDiastolic {
		return &ValidationError{Field: "diastolic", Value: diastolic,
			Reason: fmt.Sprintf("must be within [%d,%d]", MinDiastolic, MaxDiastolic)}
	}
	if diastolic >= systolic {
		return &ValidationError{Field: "diastolic", Value: diastolic,
			Reason: fmt.Sprintf("must be below systolic %d", systolic)}
	}
	return nil
}
