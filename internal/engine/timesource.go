package engine

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// TimeSource is the master clock's view of wall time, in seconds.
//
// Now must be monotonic. SleepUntil blocks until Now() >= t or ctx is done;
// it returns ctx.Err() in the latter case and nil when t is already past.
type TimeSource interface {
	Now() float64
	SleepUntil(ctx context.Context, t float64) error
}

// spinWindow is how close to a deadline RealTimeSource stops sleeping and
// starts polling.
const spinWindow = 500 * time.Microsecond

// RealTimeSource reads the process monotonic clock relative to its creation.
//
// Sleeping is precise: while more than spinWindow remains, it sleeps for
// half the remaining time; the last stretch is spent polling so OS timer
// slack does not delay the wake.
type RealTimeSource struct {
	start time.Time
}

// NewRealTimeSource creates a time source whose Now() starts at zero.
func NewRealTimeSource() *RealTimeSource {
	return &RealTimeSource{start: time.Now()}
}

// Now returns the seconds elapsed since the source was created.
func (r *RealTimeSource) Now() float64 {
	return time.Since(r.start).Seconds()
}

// SleepUntil blocks until Now() >= t.
func (r *RealTimeSource) SleepUntil(ctx context.Context, t float64) error {
	deadline := r.start.Add(time.Duration(t * float64(time.Second)))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining <= spinWindow {
			runtime.Gosched()
			continue
		}
		timer := time.NewTimer(remaining / 2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sleep is one SleepUntil call observed by a VirtualTimeSource.
type Sleep struct {
	From float64 // virtual time when the sleep was requested
	To   float64 // requested deadline
}

// VirtualTimeSource is a time source for offline rendering and tests.
// Sleeping jumps straight to the deadline; Advance models computation cost.
// Every sleep request is recorded so tests can assert on the exact
// deadlines the scheduler computed.
//
// Thread-safety: VirtualTimeSource is safe for concurrent use.
type VirtualTimeSource struct {
	mu     sync.Mutex
	start  float64
	now    float64
	sleeps []Sleep
}

// NewVirtualTimeSource creates a virtual time source starting at start.
func NewVirtualTimeSource(start float64) *VirtualTimeSource {
	return &VirtualTimeSource{start: start, now: start}
}

// Now returns the current virtual time.
func (v *VirtualTimeSource) Now() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// SleepUntil records the request and moves virtual time forward to t.
// Deadlines in the past are recorded but never move time back.
func (v *VirtualTimeSource) SleepUntil(ctx context.Context, t float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sleeps = append(v.sleeps, Sleep{From: v.now, To: t})
	if t > v.now {
		v.now = t
	}
	return nil
}

// Advance moves virtual time forward by d seconds. Negative values are
// ignored.
func (v *VirtualTimeSource) Advance(d float64) {
	if d <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now += d
}

// Sleeps returns a copy of the recorded sleeps in call order.
func (v *VirtualTimeSource) Sleeps() []Sleep {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Sleep, len(v.sleeps))
	copy(out, v.sleeps)
	return out
}

// Reset returns the source to its start time and forgets recorded sleeps.
func (v *VirtualTimeSource) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.start
	v.sleeps = nil
}
