package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/clocktree/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Event // Marks and warnings for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRelevant trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", TraceView(ev))
		}
	}

	return buf.String()
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return DefaultTolerance
}

func within(actual, expected, tol float64) bool {
	return math.Abs(actual-expected) <= tol
}

func matchingMarks(result *Result, a Assertion) []ir.Event {
	var out []ir.Event
	for _, ev := range result.Marks(a.Clock) {
		if ev.Label == a.Label {
			out = append(out, ev)
		}
	}
	return out
}

// assertMarkAt checks the master time and beat of one occurrence of a mark.
func assertMarkAt(result *Result, a Assertion) error {
	marks := matchingMarks(result, a)
	n := a.Occurrence
	if n == 0 {
		n = 1
	}
	if len(marks) < n {
		return &AssertionError{
			Type:     AssertMarkAt,
			Expected: fmt.Sprintf("occurrence %d of mark %q", n, a.Label),
			Actual:   fmt.Sprintf("%d occurrences", len(marks)),
			Trace:    result.Marks(a.Clock),
		}
	}
	ev := marks[n-1]
	tol := tolerance(a)

	if a.Time != nil && !within(ev.MasterTime, *a.Time, tol) {
		return &AssertionError{
			Type:     AssertMarkAt,
			Expected: fmt.Sprintf("mark %q at master time %s (±%g)", a.Label, ir.Decimal(*a.Time), tol),
			Actual:   fmt.Sprintf("master time %s", ir.Decimal(ev.MasterTime)),
			Trace:    []ir.Event{ev},
		}
	}
	if a.Beat != nil && !within(ev.Beat, *a.Beat, tol) {
		return &AssertionError{
			Type:     AssertMarkAt,
			Expected: fmt.Sprintf("mark %q at beat %s of %s (±%g)", a.Label, ir.Decimal(*a.Beat), ev.ClockName, tol),
			Actual:   fmt.Sprintf("beat %s", ir.Decimal(ev.Beat)),
			Trace:    []ir.Event{ev},
		}
	}
	return nil
}

// assertMarkOrder checks that the labels appear as a subsequence of the
// marks. Intervening marks are allowed and labels may repeat.
func assertMarkOrder(result *Result, a Assertion) error {
	marks := result.Marks(a.Clock)
	next := 0
	for _, ev := range marks {
		if next < len(a.Labels) && ev.Label == a.Labels[next] {
			next++
		}
	}
	if next == len(a.Labels) {
		return nil
	}

	seen := make([]string, len(marks))
	for i, ev := range marks {
		seen[i] = ev.Label
	}
	return &AssertionError{
		Type:     AssertMarkOrder,
		Expected: fmt.Sprintf("marks in order: %v", a.Labels),
		Actual:   fmt.Sprintf("stopped at %q after %d of %d; marks were %v", a.Labels[next], next, len(a.Labels), seen),
		Trace:    marks,
	}
}

// assertMarkCount checks that a mark appears exactly Count times.
func assertMarkCount(result *Result, a Assertion) error {
	marks := matchingMarks(result, a)
	if len(marks) != *a.Count {
		return &AssertionError{
			Type:     AssertMarkCount,
			Expected: fmt.Sprintf("%d occurrences of mark %q", *a.Count, a.Label),
			Actual:   fmt.Sprintf("%d occurrences", len(marks)),
			Trace:    marks,
		}
	}
	return nil
}

// assertFinalState checks where a voice's clock ended up.
func assertFinalState(result *Result, a Assertion) error {
	st, ok := result.States[a.Clock]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("voice %q to have run", a.Clock),
			Actual:   "voice never started",
		}
	}
	if a.State != "" && st.State != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("voice %q in state %s", a.Clock, a.State),
			Actual:   fmt.Sprintf("state %s", st.State),
		}
	}
	tol := tolerance(a)
	if a.Beat != nil && !within(st.Beat, *a.Beat, tol) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("voice %q at beat %s (±%g)", a.Clock, ir.Decimal(*a.Beat), tol),
			Actual:   fmt.Sprintf("beat %s", ir.Decimal(st.Beat)),
		}
	}
	return nil
}

// assertNoWarnings checks that the scheduler never fell behind and every
// conversion converged.
func assertNoWarnings(result *Result, _ Assertion) error {
	warnings := result.Warnings()
	if len(warnings) > 0 {
		return &AssertionError{
			Type:     AssertNoWarnings,
			Expected: "no warnings",
			Actual:   fmt.Sprintf("%d warnings", len(warnings)),
			Trace:    warnings,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertMarkAt:
			err = assertMarkAt(result, assertion)
		case AssertMarkOrder:
			err = assertMarkOrder(result, assertion)
		case AssertMarkCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: mark_count requires count", i)
			} else {
				err = assertMarkCount(result, assertion)
			}
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertNoWarnings:
			err = assertNoWarnings(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
