// Package ir provides the trace record types shared by the engine, the store
// and the harness.
//
// This package contains type definitions and their canonical encoding only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Canonical JSON never carries floats. Beat and time values are rendered
//     by Decimal as fixed-precision strings so traces hash and diff stably.
//   - All JSON tags use snake_case
//   - Events are ordered by their per-session seq, never by wall time
package ir
