// Package harness runs clock tree scenarios described in YAML.
//
// A scenario names a master voice and the voices it forks. Each voice is a
// list of steps (wait, set_tempo, set_tempo_target, fork, kill, mark,
// compute, repeat, fast_forward) that becomes the body of one clock.
//
// Loading:
//  1. The YAML is decoded with unknown fields rejected
//  2. The document is unified with the embedded CUE schema (schema.cue)
//  3. Voice names and assertions are cross-checked against the steps
//
// Running:
// Run executes a scenario on a virtual clock, records the trace into a
// fresh in-memory store under a fixed session id, reads it back and
// verifies it. The same scenario therefore always yields the same trace,
// which golden files (testdata/golden) pin down byte for byte.
//
// Assertions:
//   - mark_at: a mark at a master time and/or clock beat, within tolerance
//   - mark_order: marks appear in this order
//   - mark_count: a mark appears exactly N times
//   - final_state: a voice's clock ended in a state and/or at a beat
//   - no_warnings: the scheduler never fell behind
package harness
