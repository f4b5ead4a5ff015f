package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Facing selects which physical camera a stream should come from.
type Facing string

const (
	FacingRear  Facing = "rear"
	FacingFront Facing = "front"
	FacingAny   Facing = "any"
)

// acquireOrder is the preference order used during setup.
var acquireOrder = []Facing{FacingRear, FacingFront, FacingAny}

var (
	// ErrCameraUnavailable means no stream could be opened, typically because
	// camera permission was denied.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrCancelled is returned by Run when the session was cancelled.
	ErrCancelled = errors.New("capture cancelled")
	// ErrSessionActive is returned when Run is called while a session is running.
	ErrSessionActive = errors.New("capture session already active")
)

// Camera opens frame streams. AcquireStream may block until the user grants
// permission; it must honor ctx.
type Camera interface {
	AcquireStream(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is an open camera. Stop must be idempotent.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	TryEnableTorch() bool
	Facing() Facing
	Stop()
}

// acquire walks acquireOrder and returns the first stream that opens.
func acquire(ctx context.Context, cam Camera) (Stream, error) {
	var errs []error
	for _, f := range acquireOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := cam.AcquireStream(ctx, f)
		if err == nil && s != nil {
			return s, nil
		}
		if err == nil {
			err = fmt.Errorf("no %s stream", f)
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, errors.Join(errs...))
}
