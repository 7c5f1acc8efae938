package envelope

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultMaxIterations caps the root finding used to invert curved segments.
	DefaultMaxIterations = 64

	// MaxCurvature bounds the curvature of a curved ramp in either
	// direction. Beyond it e^k leaves float64 range.
	MaxCurvature = 500.0
)

var (
	// ErrInvalidTempo is returned for rates that are not positive and finite.
	ErrInvalidTempo = errors.New("tempo must be positive and finite")

	// ErrInvalidCurvature is returned for curvatures that are not finite
	// or exceed MaxCurvature in magnitude.
	ErrInvalidCurvature = errors.New("curvature out of range")

	// ErrInvalidShape is returned by ParseShape and ParseUnits for unknown names.
	ErrInvalidShape = errors.New("unknown envelope shape")

	// ErrNonConvergence reports that an inversion fell back to a linear
	// approximation. It is a warning: the accompanying value is usable.
	ErrNonConvergence = errors.New("beat to time inversion did not converge")
)

// NonConvergenceError carries the details of a fallback inversion.
type NonConvergenceError struct {
	Start      float64 // owner time the inversion started from
	Beats      float64 // beats requested
	Iterations int     // iterations spent before giving up
	Segment    Segment // segment that failed to converge
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%v: %g beats from t=%g after %d iterations (curvature %g)",
		ErrNonConvergence, e.Beats, e.Start, e.Iterations, e.Segment.Curvature)
}

func (e *NonConvergenceError) Unwrap() error {
	return ErrNonConvergence
}

// Breakpoint is a read-only view of the envelope: from Time onward the rate
// starts at Rate and moves according to Shape until the next breakpoint.
type Breakpoint struct {
	Time  float64
	Rate  float64
	Shape Shape
}

// Envelope is a tempo curve over a clock's own elapsed time.
//
// An Envelope is not safe for concurrent use. Clocks mutate their envelope
// only while their task holds the scheduler.
type Envelope struct {
	segments []Segment
	tail     float64 // rate after the last segment

	// MaxIterations caps curved-segment inversion. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// New creates an envelope holding rate forever.
func New(rate float64) (*Envelope, error) {
	if !validRate(rate) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidTempo, rate)
	}
	return &Envelope{tail: rate}, nil
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

// ValidCurvature reports whether k can be used as a curved ramp's curvature.
func ValidCurvature(k float64) bool {
	return !math.IsNaN(k) && math.Abs(k) <= MaxCurvature
}

// Len returns the owner time at which the last explicit segment ends.
func (e *Envelope) Len() float64 {
	if len(e.segments) == 0 {
		return 0
	}
	return e.segments[len(e.segments)-1].End
}

// FinalRate returns the rate the envelope settles on after its last segment.
func (e *Envelope) FinalRate() float64 {
	return e.tail
}

// RateAt returns the instantaneous rate at owner time t.
func (e *Envelope) RateAt(t float64) float64 {
	for _, s := range e.segments {
		if t < s.End {
			if t < s.Start {
				return s.From
			}
			return s.Rate(t)
		}
	}
	return e.tail
}

// Breakpoints lists where the rate curve changes character.
func (e *Envelope) Breakpoints() []Breakpoint {
	points := make([]Breakpoint, 0, len(e.segments)+1)
	for _, s := range e.segments {
		points = append(points, Breakpoint{Time: s.Start, Rate: s.From, Shape: s.Shape})
	}
	return append(points, Breakpoint{Time: e.Len(), Rate: e.tail, Shape: Fixed})
}

// Segments returns a copy of the explicit segments.
func (e *Envelope) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// truncate drops everything after owner time at and extends the curve with a
// constant segment if the last explicit segment ends before at. Afterwards
// the envelope ends exactly at at (or has no segments) and tail equals the
// rate the curve had reached there.
func (e *Envelope) truncate(at float64) {
	rate := e.RateAt(at)
	kept := e.segments[:0]
	for _, s := range e.segments {
		if s.Start >= at {
			break
		}
		if s.End > at {
			s = s.split(at)
		}
		kept = append(kept, s)
	}
	e.segments = kept

	if end := e.Len(); end < at {
		e.segments = append(e.segments, Segment{
			Start: end, End: at, From: e.tail, To: e.tail, Shape: Fixed,
		})
	}
	e.tail = rate
}

// SetTempo replaces the envelope from owner time at onward with a constant
// rate. The curve before at is untouched.
func (e *Envelope) SetTempo(at, rate float64) error {
	if !validRate(rate) {
		return fmt.Errorf("%w: %g", ErrInvalidTempo, rate)
	}
	e.truncate(at)
	e.tail = rate
	return nil
}

// SetTempoTarget replaces the envelope from owner time at onward with a ramp
// from the current rate to rate, lasting duration in the given units, and
// holds rate afterwards. A duration of zero or less behaves as SetTempo.
// curvature is only read for Curved ramps and must lie within
// [-MaxCurvature, MaxCurvature].
func (e *Envelope) SetTempoTarget(at, rate, duration float64, units Units, shape Shape, curvature float64) error {
	if !validRate(rate) {
		return fmt.Errorf("%w: %g", ErrInvalidTempo, rate)
	}
	if shape == Curved && !ValidCurvature(curvature) {
		return fmt.Errorf("%w: %g", ErrInvalidCurvature, curvature)
	}
	if duration <= 0 || math.IsNaN(duration) {
		return e.SetTempo(at, rate)
	}
	if math.IsInf(duration, 0) {
		return fmt.Errorf("ramp duration must be finite: %g", duration)
	}

	e.truncate(at)
	from := e.tail
	ramp := Segment{Start: at, End: at + 1, From: from, To: rate, Shape: shape, Curvature: curvature}

	span := duration
	if units == Beats {
		// Beats in a unit-length ramp scale linearly with its length.
		span = duration / ramp.Integral(at, at+1)
	}
	ramp.End = at + span

	e.segments = append(e.segments, ramp)
	e.tail = rate
	return nil
}

// BeatsForTime returns the beats elapsed over dt units of owner time starting
// at owner time start.
func (e *Envelope) BeatsForTime(start, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	end := start + dt
	var beats float64
	t := start
	for _, s := range e.segments {
		if t >= end {
			break
		}
		if s.End <= t {
			continue
		}
		hi := math.Min(s.End, end)
		beats += s.Integral(t, hi)
		t = hi
	}
	if t < end {
		beats += e.tail * (end - t)
	}
	return beats
}

// TimeForBeats returns the owner time needed to advance beats starting at
// owner time start.
//
// The duration is always usable. A non-nil error wrapping ErrNonConvergence
// means a curved segment was inverted with its average rate instead.
func (e *Envelope) TimeForBeats(start, beats float64) (float64, error) {
	if beats <= 0 {
		return 0, nil
	}
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var warn error
	remaining := beats
	t := start
	for _, s := range e.segments {
		if s.End <= t {
			continue
		}
		available := s.Integral(t, s.End)
		if remaining > available {
			remaining -= available
			t = s.End
			continue
		}
		x, iterations, ok := s.solve(t, remaining, maxIter)
		if !ok {
			warn = &NonConvergenceError{Start: start, Beats: beats, Iterations: iterations, Segment: s}
		}
		return x - start, warn
	}
	t += remaining / e.tail
	return t - start, warn
}
