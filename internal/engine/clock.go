package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/petermattis/goid"

	"github.com/roach88/clocktree/internal/envelope"
	"github.com/roach88/clocktree/internal/ir"
)

// Clock is a handle to one clock in the tree.
//
// Mutating methods (Wait, WaitForChildren, Fork, the tempo setters, Kill,
// Mark, SetLogProcessingTime and the fast-forward family) must be called
// from the task that currently holds the scheduler; any other caller gets a
// NOT_RUNNING error. Readers may be called from that task or after Run has
// returned. A handle stays valid after its clock is released and keeps
// reporting the clock's last position.
type Clock struct {
	engine *Engine
	node   *node
}

// ForkOptions configures a child clock.
type ForkOptions struct {
	// Name labels the clock in traces and logs.
	Name string
	// InitialRate is the child's rate relative to this clock's beats.
	// Zero means 1: the child's beats coincide with the parent's, so it
	// starts out at the caller's tempo.
	InitialRate float64
}

// Engine returns the scheduler the clock belongs to.
func (c *Clock) Engine() *Engine { return c.engine }

// ID returns the clock's id.
func (c *Clock) ID() NodeID { return c.node.id }

// Name returns the clock's name.
func (c *Clock) Name() string { return c.node.name }

// String returns the clock's name, or "clock-<id>" if it has none.
func (c *Clock) String() string { return c.node.label() }

// Beat returns the clock's current beat position.
func (c *Clock) Beat() float64 { return c.node.beat }

// Time returns the elapsed time in the clock's own frame: its parent's
// beats since it was forked, or master time for the master.
func (c *Clock) Time() float64 { return c.node.time }

// TimeInMaster returns the master's logical time.
func (c *Clock) TimeInMaster() float64 { return c.engine.now }

// Rate returns the current rate in beats per unit of the clock's time.
func (c *Clock) Rate() float64 { return c.node.env.RateAt(c.node.time) }

// Tempo returns the current rate in beats per minute.
func (c *Clock) Tempo() float64 { return c.Rate() * 60 }

// BeatLength returns the current length of one beat in the clock's time.
func (c *Clock) BeatLength() float64 { return 1 / c.Rate() }

// AbsoluteRate returns the current rate in beats per unit of master time:
// the product of the clock's rate and the rates of all its ancestors.
func (c *Clock) AbsoluteRate() float64 {
	r := c.Rate()
	for _, a := range c.Ancestors() {
		r *= a.Rate()
	}
	return r
}

// AbsoluteTempo returns AbsoluteRate in beats per minute.
func (c *Clock) AbsoluteTempo() float64 { return c.AbsoluteRate() * 60 }

// AbsoluteBeatLength returns the current length of one beat in master time.
func (c *Clock) AbsoluteBeatLength() float64 { return 1 / c.AbsoluteRate() }

// Breakpoints returns a read-only view of the clock's tempo envelope.
func (c *Clock) Breakpoints() []envelope.Breakpoint { return c.node.env.Breakpoints() }

// State returns the clock's lifecycle state.
func (c *Clock) State() State { return c.node.state }

// Drift returns how late, in seconds, the latest resume was against its
// deadline.
func (c *Clock) Drift() float64 { return c.node.drift }

// IsMaster reports whether c is the root clock.
func (c *Clock) IsMaster() bool { return c.node == c.engine.master }

// Parent returns the parent clock, or nil for the master and for released
// clocks whose parent has left the tree.
func (c *Clock) Parent() *Clock {
	p, ok := c.engine.nodes[c.node.parent]
	if c.node.parent == 0 || !ok {
		return nil
	}
	return p.handle
}

// Children returns the live and finished children in fork order.
func (c *Clock) Children() []*Clock {
	out := make([]*Clock, 0, len(c.node.children))
	for _, id := range c.node.children {
		if n, ok := c.engine.nodes[id]; ok {
			out = append(out, n.handle)
		}
	}
	return out
}

// Ancestors returns the parent, grandparent and so on up to the master.
func (c *Clock) Ancestors() []*Clock {
	var out []*Clock
	for p := c.Parent(); p != nil; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// Descendants returns every clock below c, depth first in fork order.
func (c *Clock) Descendants() []*Clock {
	var out []*Clock
	for _, child := range c.Children() {
		out = append(out, child)
		out = append(out, child.Descendants()...)
	}
	return out
}

// checkCaller returns the running task if the calling goroutine holds the
// scheduler.
func (c *Clock) checkCaller(op string) (*task, error) {
	e := c.engine
	t := e.running.Load()
	if t == nil || t.gid.Load() != goid.Get() {
		return nil, newNotRunningError(c.node, op)
	}
	if e.closing {
		return nil, newSessionClosedError(nil)
	}
	return t, nil
}

// checkMutable combines the caller check with a liveness check.
func (c *Clock) checkMutable(op string) (*task, error) {
	t, err := c.checkCaller(op)
	if err != nil {
		return nil, err
	}
	if !c.node.live() || c.node.killed {
		return nil, newDeadClockError(c.node, op)
	}
	return t, nil
}

// Wait suspends the caller until the clock has advanced by beats.
//
// Wait must be called on the caller's own clock. Waiting zero beats yields
// to every other clock due at the current time. If the clock is killed
// while waiting, Wait returns a DEAD_CLOCK error; if the session shuts
// down, a SESSION_CLOSED error.
func (c *Clock) Wait(beats float64) error {
	t, err := c.checkMutable("wait")
	if err != nil {
		return err
	}
	n := c.node
	if t.node != n {
		return newNotRunningError(n, "wait")
	}
	if beats < 0 || math.IsNaN(beats) || math.IsInf(beats, 0) {
		return newNegativeWaitError(n, beats)
	}

	e := c.engine
	n.hasTarget = true
	n.wakeBeat = n.beat + beats
	n.wake = e.wakeTime(n)
	n.state = Waiting
	e.queue.schedule(n, n.wake)
	e.emit(ir.KindWait, n, "", fmt.Sprintf("beats=%s wake=%s", ir.Decimal(beats), ir.Decimal(n.wake)))
	e.logProcessing(n)

	switch t.park() {
	case resumeKilled:
		return newDeadClockError(n, "wait")
	case resumeClosed:
		return newSessionClosedError(nil)
	}
	return nil
}

// WaitForChildren suspends the caller until every clock it forked has left
// the tree. A finished child still framing children of its own keeps the
// caller waiting, and so do children inherited from a killed child. It
// returns at once when the clock has no children.
func (c *Clock) WaitForChildren() error {
	t, err := c.checkMutable("wait_for_children")
	if err != nil {
		return err
	}
	n := c.node
	if t.node != n {
		return newNotRunningError(n, "wait_for_children")
	}
	if len(n.children) == 0 {
		return nil
	}

	e := c.engine
	n.awaitChildren = true
	n.state = Waiting
	e.emit(ir.KindWait, n, "", fmt.Sprintf("children=%d", len(n.children)))
	e.logProcessing(n)

	switch t.park() {
	case resumeKilled:
		return newDeadClockError(n, "wait_for_children")
	case resumeClosed:
		return newSessionClosedError(nil)
	}
	return nil
}

// Fork creates a child clock running body. The child starts at the
// current time, before the caller's next wait completes.
func (c *Clock) Fork(opts ForkOptions, body Body) (*Clock, error) {
	if _, err := c.checkMutable("fork"); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("fork: body is required")
	}
	e := c.engine
	parent := c.node

	r := opts.InitialRate
	if r == 0 {
		r = 1
	}
	env, err := envelope.New(r)
	if err != nil {
		return nil, newInvalidTempoError(parent, r, err)
	}

	child := e.newNode(opts.Name, parent.id, env, parent.beat)
	child.task = newTask(child, body)
	e.tasks = append(e.tasks, child.task)
	parent.children = append(parent.children, child.id)
	e.queue.schedule(child, e.now)

	e.emit(ir.KindFork, child, "", fmt.Sprintf("rate=%s", ir.Decimal(r)))
	e.logger.Debug("forked clock",
		"session", e.session,
		"clock", child.label(),
		"parent", parent.label(),
		"master_time", e.now)
	return child.handle, nil
}

// SetTempo makes rate the clock's constant rate from now on, discarding
// any ramp in progress.
func (c *Clock) SetTempo(rate float64) error {
	if _, err := c.checkMutable("set_tempo"); err != nil {
		return err
	}
	n := c.node
	if err := n.env.SetTempo(n.time, rate); err != nil {
		return newInvalidTempoError(n, rate, err)
	}
	c.engine.emit(ir.KindTempo, n, "", fmt.Sprintf("rate=%s", ir.Decimal(rate)))
	c.engine.rederive(n)
	return nil
}

// SetBPM sets the tempo in beats per minute.
func (c *Clock) SetBPM(bpm float64) error {
	return c.SetTempo(bpm / 60)
}

// SetBeatLength sets the tempo by the length of one beat.
func (c *Clock) SetBeatLength(length float64) error {
	return c.SetTempo(1 / length)
}

// SetTempoTarget ramps from the current rate to rate over duration,
// measured in the clock's time or beats, and holds rate afterwards.
// curvature only applies to envelope.Curved and must lie within
// ±envelope.MaxCurvature. A duration of zero or less behaves as SetTempo.
func (c *Clock) SetTempoTarget(rate, duration float64, units envelope.Units, shape envelope.Shape, curvature float64) error {
	if _, err := c.checkMutable("set_tempo_target"); err != nil {
		return err
	}
	n := c.node
	if err := n.env.SetTempoTarget(n.time, rate, duration, units, shape, curvature); err != nil {
		if errors.Is(err, envelope.ErrInvalidTempo) {
			return newInvalidTempoError(n, rate, err)
		}
		return fmt.Errorf("set_tempo_target on %s: %w", n.label(), err)
	}
	c.engine.emit(ir.KindTempo, n, "", fmt.Sprintf("target=%s over=%s %s shape=%s",
		ir.Decimal(rate), ir.Decimal(duration), units, shape))
	c.engine.rederive(n)
	return nil
}

// Kill removes the clock from the tree immediately. Its children are
// reparented to its parent and keep their positions. A waiting task is
// woken with a DEAD_CLOCK error so its body can return.
//
// Killing the master finishes its task but keeps it as the frame of its
// children; the session ends when they are done.
func (c *Clock) Kill() error {
	if _, err := c.checkCaller("kill"); err != nil {
		return err
	}
	e := c.engine
	n := c.node
	if n.state == Released || n.killed {
		return newDeadClockError(n, "kill")
	}
	n.killed = true

	if n.entry != nil || n.awaitChildren {
		e.queue.cancel(n)
		n.hasTarget = false
		n.awaitChildren = false
		if n.task.started {
			e.reaping = append(e.reaping, n.task)
		} else {
			n.task.done = true
		}
	}
	e.emit(ir.KindKill, n, "", "")
	e.logger.Debug("killed clock", "session", e.session, "clock", n.label(), "master_time", e.now)

	if n == e.master {
		if n.state != Active {
			n.state = Finished
		}
		e.tryRelease(n)
		return nil
	}
	e.reparentChildren(n)
	e.release(n)
	return nil
}

// Mark records a labelled event at the clock's current position.
func (c *Clock) Mark(label string) error {
	if _, err := c.checkCaller("mark"); err != nil {
		return err
	}
	c.engine.emit(ir.KindMark, c.node, ir.NormalizeName(label), "")
	return nil
}

// SetLogProcessingTime turns per-wait processing-time reports for this
// clock up from debug to info level.
func (c *Clock) SetLogProcessingTime(on bool) error {
	if _, err := c.checkMutable("log_processing_time"); err != nil {
		return err
	}
	c.node.logProcessing = on
	return nil
}

// FastForwardTo skips sleeping until master time t; the tree runs
// through the skipped span as fast as it can compute. Master only.
func (c *Clock) FastForwardTo(t float64) error {
	if _, err := c.checkCaller("fast_forward"); err != nil {
		return err
	}
	e := c.engine
	if !c.IsMaster() {
		return newNotMasterError(c.node, "fast_forward")
	}
	if math.IsNaN(t) || t < e.now {
		return fmt.Errorf("cannot fast-forward to %g: master time is already %g", t, e.now)
	}
	e.ffActive = true
	e.ffGoal = t
	e.logger.Info("fast-forwarding", "session", e.session, "from", e.now, "to", t)
	return nil
}

// FastForwardBy skips sleeping for the next dt of master time.
func (c *Clock) FastForwardBy(dt float64) error {
	return c.FastForwardTo(c.engine.now + dt)
}

// FastForwardToBeat skips sleeping until the master reaches beat, reading
// the master's tempo envelope as it stands now.
func (c *Clock) FastForwardToBeat(beat float64) error {
	if _, err := c.checkCaller("fast_forward"); err != nil {
		return err
	}
	if !c.IsMaster() {
		return newNotMasterError(c.node, "fast_forward")
	}
	n := c.node
	if math.IsNaN(beat) || beat < n.beat {
		return fmt.Errorf("cannot fast-forward to beat %g: master is already at beat %g", beat, n.beat)
	}
	dt, err := n.env.TimeForBeats(n.time, beat-n.beat)
	if err != nil {
		c.engine.warn(n, newNonConvergenceError(n, err))
	}
	return c.FastForwardTo(c.engine.now + dt)
}

// FastForwardByBeats skips sleeping for the next beats of the master.
func (c *Clock) FastForwardByBeats(beats float64) error {
	return c.FastForwardToBeat(c.node.beat + beats)
}

// IsFastForwarding reports whether a fast-forward is in progress.
func (c *Clock) IsFastForwarding() bool {
	return c.engine.ffActive
}
