package envelope

import (
	"fmt"
	"math"
	"strings"
)

// Shape selects how a segment moves between its start and end rates.
type Shape int

const (
	// Fixed holds the start rate for the whole segment.
	Fixed Shape = iota
	// Linear interpolates the rate linearly in time.
	Linear
	// Exponential changes the rate by a constant proportion per unit time.
	Exponential
	// Curved follows a scaled piece of e^x whose bend is set by the
	// segment's curvature: 0 is linear, positive values change late and
	// negative values change early.
	Curved
)

// flatEpsilon is the curvature (or log ratio) below which a curved or
// exponential segment is treated as linear.
const flatEpsilon = 1e-9

// String returns the lower-case shape name used in scenarios and traces.
func (s Shape) String() string {
	switch s {
	case Fixed:
		return "fixed"
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	case Curved:
		return "curved"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape converts a shape name into a Shape.
// The empty string selects Linear.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear, nil
	case "fixed", "constant":
		return Fixed, nil
	case "exponential", "exp":
		return Exponential, nil
	case "curved":
		return Curved, nil
	default:
		return Linear, fmt.Errorf("%w: %q", ErrInvalidShape, name)
	}
}

// Segment is one piece of an envelope covering [Start, End) of owner time.
type Segment struct {
	Start     float64
	End       float64
	From      float64
	To        float64
	Shape     Shape
	Curvature float64
}

func (s Segment) duration() float64 {
	return s.End - s.Start
}

// effectiveShape folds degenerate exponential and curved segments into
// linear ones, where their closed forms divide by zero.
func (s Segment) effectiveShape() Shape {
	switch s.Shape {
	case Exponential:
		if math.Abs(math.Log(s.To/s.From)) < flatEpsilon {
			return Linear
		}
	case Curved:
		if math.Abs(s.Curvature) < flatEpsilon {
			return Linear
		}
	}
	return s.Shape
}

// norm maps t onto [0, 1] across the segment.
func (s Segment) norm(t float64) float64 {
	d := s.duration()
	if d <= 0 {
		return 0
	}
	u := (t - s.Start) / d
	return math.Min(1, math.Max(0, u))
}

// Rate returns the instantaneous rate at owner time t, clipped to the
// segment's bounds.
func (s Segment) Rate(t float64) float64 {
	u := s.norm(t)
	switch s.effectiveShape() {
	case Fixed:
		return s.From
	case Exponential:
		return s.From * math.Pow(s.To/s.From, u)
	case Curved:
		k := s.Curvature
		return s.From + (s.To-s.From)*math.Expm1(k*u)/math.Expm1(k)
	default:
		return s.From + (s.To-s.From)*u
	}
}

// Integral returns the beats elapsed between owner times a and b, both of
// which must lie inside the segment.
func (s Segment) Integral(a, b float64) float64 {
	if b <= a {
		return 0
	}
	switch s.effectiveShape() {
	case Fixed:
		return s.From * (b - a)
	case Exponential:
		k := math.Log(s.To / s.From)
		return s.duration() * s.From / k * (math.Exp(k*s.norm(b)) - math.Exp(k*s.norm(a)))
	case Curved:
		return s.duration() * (s.antiderivative(s.norm(b)) - s.antiderivative(s.norm(a)))
	default:
		return (b - a) * (s.Rate(a) + s.Rate(b)) / 2
	}
}

// antiderivative of the curved rate in normalized time:
// F(u) = A*u + B*e^(S*u).
func (s Segment) antiderivative(u float64) float64 {
	k := s.Curvature
	em1 := math.Expm1(k)
	a := s.From - (s.To-s.From)/em1
	b := (s.To - s.From) / (k * em1)
	return a*u + b*math.Exp(k*u)
}

// solve returns the owner time x in [a, End] at which the integral from a
// reaches beats. The caller guarantees beats does not exceed the integral
// over [a, End]. converged is false only for curved segments whose
// iteration hit maxIter; x is then the linear approximation.
func (s Segment) solve(a, beats float64, maxIter int) (x float64, iterations int, converged bool) {
	if beats <= 0 {
		return a, 0, true
	}
	ra := s.Rate(a)
	switch s.effectiveShape() {
	case Fixed:
		return a + beats/ra, 0, true
	case Linear:
		m := (s.To - s.From) / s.duration()
		// 2β / (ra + sqrt(ra² + 2mβ)) avoids cancellation when m is small.
		disc := ra*ra + 2*m*beats
		if disc < 0 {
			disc = 0
		}
		return a + 2*beats/(ra+math.Sqrt(disc)), 0, true
	case Exponential:
		kappa := math.Log(s.To/s.From) / s.duration()
		return a + math.Log1p(kappa*beats/ra)/kappa, 0, true
	}
	return s.solveCurved(a, beats, maxIter)
}

func (s Segment) solveCurved(a, beats float64, maxIter int) (float64, int, bool) {
	lo, hi := a, s.End
	x := a + beats/s.Rate(a)
	if x > hi {
		x = hi
	}
	tol := 1e-12 * math.Max(1, beats)

	for i := 0; i < maxIter; i++ {
		g := s.Integral(a, x) - beats
		if math.Abs(g) <= tol {
			return x, i + 1, true
		}
		if g > 0 {
			hi = x
		} else {
			lo = x
		}
		next := x - g/s.Rate(x)
		if next <= lo || next >= hi || math.IsNaN(next) {
			next = (lo + hi) / 2
		}
		x = next
	}

	total := s.Integral(a, s.End)
	return a + beats*(s.End-a)/total, maxIter, false
}

// split cuts the segment at t, returning the part before t. The curve up to
// t is unchanged.
func (s Segment) split(t float64) Segment {
	head := s
	head.End = t
	head.To = s.Rate(t)
	if s.Shape == Curved {
		head.Curvature = s.Curvature * s.norm(t)
	}
	return head
}
