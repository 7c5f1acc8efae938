// Package engine implements the clock tree and its cooperative scheduler.
//
// A session has one master clock bound to a TimeSource. Every other clock is
// forked from a parent and measures its time in the parent's beats, so a
// tempo change anywhere in the tree stretches or squeezes every descendant.
// Each clock runs a Body that waits in its own beats.
//
// ARCHITECTURE:
//
// Baton-Passing Scheduler:
// Each body runs on its own goroutine, but exactly one of them holds the
// scheduler at a time. The engine goroutine is parked while a body runs and
// the body is parked while the engine runs. All tree state is therefore
// mutated by one logical thread and needs no locks.
//
// Scheduling Flow:
//  1. A body calls Wait; the target beat is converted to a master wake time
//     by walking the ancestor chain
//  2. The wake is pushed onto a (wake, seq) min-heap and the body parks
//  3. Run pops the earliest wake and sleeps until its wall deadline, as set
//     by the TimingPolicy
//  4. Every clock's position is advanced to the new master time
//  5. The woken body resumes until it waits or returns
//
// Tempo changes and reparenting re-derive the wake times of every waiting
// clock below the change.
//
// CRITICAL PATTERNS:
//
// Logical Order:
// Trace events are stamped from a Sequence, never from wall time. Among
// equal wake times, entries pop in push order.
//
// Lifecycle:
// A clock whose body returns stays in the tree as the frame of its children
// and is released with the last of them. Killing a clock releases it at once
// and hands its children to its parent.
package engine
