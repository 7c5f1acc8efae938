// Package envelope implements tempo envelopes: piecewise rate curves over a
// clock's own elapsed time.
//
// An Envelope starts at time 0 and is made of contiguous segments. Each
// segment ramps from one rate to another with a Shape; after the last
// segment the rate holds constant. Rates are beats per unit of elapsed time,
// so a rate of 2 means two beats pass per unit of the owner's time.
//
// Two conversions are provided:
//
//   - BeatsForTime integrates the rate over a window of elapsed time. This is
//     closed form for every shape.
//   - TimeForBeats inverts that integral. Fixed, linear and exponential
//     segments have closed-form inverses. Curved segments are solved with a
//     bounded Newton iteration guarded by bisection; if the iteration cap is
//     reached the segment is inverted with its average rate and the returned
//     error wraps ErrNonConvergence. The returned value is always usable.
//
// INVARIANTS:
//   - Every rate is positive and finite.
//   - Segment boundaries strictly increase.
//   - Mutations (SetTempo, SetTempoTarget) never alter the curve before the
//     time they are applied at, so integrals up to the present are stable.
package envelope
