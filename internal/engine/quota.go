package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts task resumptions in a session and enforces a
// maximum.
//
// A body that waits zero beats in a loop never advances time; the quota
// turns that runaway session into an error instead of a hang.
type QuotaEnforcer struct {
	maxSteps int // zero disables the limit
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
// A limit of zero or less disables enforcement.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
func (q *QuotaEnforcer) Check(session string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			Session: session,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned by Run when a session exceeds the max
// steps quota. The session is shut down: every parked task is resumed with
// a SESSION_CLOSED error so its body can return.
type StepsExceededError struct {
	Session string // The session that exceeded the quota
	Steps   int    // Number of resumptions performed
	Limit   int    // Maximum allowed resumptions
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("session %s exceeded max steps quota: %d steps > %d limit",
		e.Session, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
