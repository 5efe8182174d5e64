package stm

import (
	"errors"
	"fmt"

	"github.com/jad-hamza/vscoq/position"
)

// Sentinel errors for the stm package.
var (
	// ErrDisposed is returned by every operation once the controller has
	// been disposed; a disposed controller can never be reinitialized.
	ErrDisposed = errors.New("stm: disposed")
)

// FailValue is the controller's translation of a backend command
// rejection: the message and range are in document coordinates,
// already translated from the backend's text-relative offsets via
// position.PositionAtRelative.
type FailValue struct {
	Message string
	Range   position.Range
}

func (e *FailValue) Error() string {
	return fmt.Sprintf("command failed: %s", e.Message)
}

// InconsistentStateError is a fatal internal-invariant violation, e.g.
// an add attempted off-focus. It always
// terminates the STM: the controller disposes itself and notifies
// CoqDied before returning this error to the caller that triggered it.
type InconsistentStateError struct {
	Reason string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state: %s", e.Reason)
}

// BackendClosedError wraps an unexpected backend closure, constructed
// by handleFeedback's EventClosed case and passed to CoqDied. Err is
// whatever transport-level error (if any) accompanied the closure;
// it's nil when the transport's read loop simply reached EOF. A
// graceful Shutdown/Dispose already moves the controller out of the
// running state before its resulting close is ever observed here, so
// every BackendClosedError CoqDied receives — nil Err or not —
// represents a closure nobody asked for.
type BackendClosedError struct {
	Err error
}

func (e *BackendClosedError) Error() string {
	if e.Err == nil {
		return "backend closed"
	}
	return fmt.Sprintf("backend closed unexpectedly: %s", e.Err)
}

func (e *BackendClosedError) Unwrap() error { return e.Err }
