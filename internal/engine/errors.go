package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while driving the clock tree.
//
// Runtime errors include:
//   - Invalid tempo: a rate that is not positive and finite
//   - Negative wait: a wait for fewer than zero beats
//   - Dead clock: an operation on a finished, released or killed clock
//   - Non-convergence: a beat to time inversion fell back to an
//     approximation (reported as a warning, never returned to a body)
//   - Not running: a mutating call from a goroutine that does not hold the
//     scheduler
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Clock identifies the affected clock, if any.
	Clock NodeID

	// ClockName is the affected clock's name, if any.
	ClockName string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidTempo indicates a rate <= 0 or a non-finite rate.
	ErrCodeInvalidTempo RuntimeErrorCode = "INVALID_TEMPO"

	// ErrCodeNegativeWait indicates a wait for a negative or non-finite
	// number of beats.
	ErrCodeNegativeWait RuntimeErrorCode = "NEGATIVE_WAIT"

	// ErrCodeDeadClock indicates an operation on a clock that is finished,
	// released or killed.
	ErrCodeDeadClock RuntimeErrorCode = "DEAD_CLOCK"

	// ErrCodeNonConvergence indicates an approximate beat to time inversion.
	ErrCodeNonConvergence RuntimeErrorCode = "NON_CONVERGENCE"

	// ErrCodeNotRunning indicates a mutating call from outside the task that
	// currently holds the scheduler.
	ErrCodeNotRunning RuntimeErrorCode = "NOT_RUNNING"

	// ErrCodeNotMaster indicates a master-only operation on another clock.
	ErrCodeNotMaster RuntimeErrorCode = "NOT_MASTER"

	// ErrCodeSessionClosed indicates the scheduler has shut down.
	ErrCodeSessionClosed RuntimeErrorCode = "SESSION_CLOSED"

	// ErrCodeBehind indicates a resume later than the behind threshold.
	// Only ever reported as a warning.
	ErrCodeBehind RuntimeErrorCode = "BEHIND"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ClockName != "" {
		msg = fmt.Sprintf("%s (clock=%s)", msg, e.ClockName)
	} else if e.Clock != 0 {
		msg = fmt.Sprintf("%s (clock=%d)", msg, e.Clock)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsInvalidTempo returns true if the error is an invalid tempo error.
// Uses errors.As to handle wrapped errors.
func IsInvalidTempo(err error) bool {
	return hasCode(err, ErrCodeInvalidTempo)
}

// IsNegativeWait returns true if the error is a negative wait error.
func IsNegativeWait(err error) bool {
	return hasCode(err, ErrCodeNegativeWait)
}

// IsDeadClock returns true if the error reports an operation on a dead clock.
func IsDeadClock(err error) bool {
	return hasCode(err, ErrCodeDeadClock)
}

// IsNonConvergence returns true if the error reports an approximate
// inversion.
func IsNonConvergence(err error) bool {
	return hasCode(err, ErrCodeNonConvergence)
}

// IsNotRunning returns true if the error reports a call from a goroutine
// that does not hold the scheduler.
func IsNotRunning(err error) bool {
	return hasCode(err, ErrCodeNotRunning)
}

// IsSessionClosed returns true if the error reports a closed session.
func IsSessionClosed(err error) bool {
	return hasCode(err, ErrCodeSessionClosed)
}

func newInvalidTempoError(n *node, rate float64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeInvalidTempo,
		Message:   fmt.Sprintf("tempo must be positive and finite, got %g", rate),
		Clock:     n.id,
		ClockName: n.name,
		Err:       cause,
	}
}

func newNegativeWaitError(n *node, beats float64) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNegativeWait,
		Message:   fmt.Sprintf("wait must be a non-negative finite number of beats, got %g", beats),
		Clock:     n.id,
		ClockName: n.name,
	}
}

func newDeadClockError(n *node, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeDeadClock,
		Message:   fmt.Sprintf("%s on %s clock", op, n.state),
		Clock:     n.id,
		ClockName: n.name,
		Details:   map[string]string{"op": op, "state": n.state.String()},
	}
}

func newNonConvergenceError(n *node, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNonConvergence,
		Message:   "wake time is approximate",
		Clock:     n.id,
		ClockName: n.name,
		Err:       cause,
	}
}

func newNotRunningError(n *node, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNotRunning,
		Message:   fmt.Sprintf("%s must be called from the running task", op),
		Clock:     n.id,
		ClockName: n.name,
		Details:   map[string]string{"op": op},
	}
}

func newNotMasterError(n *node, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNotMaster,
		Message:   fmt.Sprintf("%s is only available on the master clock", op),
		Clock:     n.id,
		ClockName: n.name,
	}
}

func newSessionClosedError(cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSessionClosed,
		Message: "session is shutting down",
		Err:     cause,
	}
}
