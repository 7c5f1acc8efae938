package engine

import "sync/atomic"

// Sequence is a monotonic logical counter.
//
// The engine keeps three: one hands out clock ids, one numbers trace events
// and one stamps every push onto the wake queue so entries with equal wake
// times pop in the order they were pushed. Logical order never depends on
// wall time.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// In practice only the goroutine holding the scheduler calls Next().
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next value. Each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
