package harness

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is wrapped by every TrialConfig validation failure.
	ErrInvalidConfig = errors.New("invalid trial config")
	// ErrWorkerTimeout matches any *TimeoutError.
	ErrWorkerTimeout = errors.New("workers did not stop within grace period")
)

// TimeoutError is returned when a phase's workers outlive the grace period.
// The backend's Emit calls may still be in flight, so it must not be shut
// down.
type TimeoutError struct {
	Backend string
	Phase   string
	Grace   time.Duration
	Running int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %s: %d %s workers still running after %s grace period",
		e.Backend, e.Running, e.Phase, e.Grace)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrWorkerTimeout
}

// EmitError wraps a failed or panicking Emit call.
type EmitError struct {
	Backend string
	Err     error
	Panic   any
}

func (e *EmitError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("backend %s: emit panicked: %v", e.Backend, e.Panic)
	}

	return fmt.Sprintf("backend %s: emit: %v", e.Backend, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}

// ShutdownError wraps a failed Shutdown call.
type ShutdownError struct {
	Backend string
	Err     error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("backend %s: shutdown: %v", e.Backend, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}
