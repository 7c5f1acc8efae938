package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/clocktree/internal/envelope"
	"github.com/roach88/clocktree/internal/ir"
)

const (
	// DefaultMaxSteps disables the resumption quota.
	DefaultMaxSteps = 0

	// DefaultBehindThreshold is how late a resume may be, in seconds, before
	// a warning is raised.
	DefaultBehindThreshold = 0.010
)

// errStopped ends the loop after Stop; Run reports it as a clean exit.
var errStopped = errors.New("engine stopped")

// Engine is the cooperative scheduler that drives a clock tree.
//
// The engine owns the node table, the wake queue and the master's logical
// time. Task bodies run on their own goroutines, but only one of them holds
// the scheduler at a time and the engine goroutine is blocked while it
// does. All tree state is therefore written by one logical thread.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, once
//   - Clock mutators: only from the task that holds the scheduler
//   - Clock readers: from the running task, or after Run returns
//   - Stop(): safe from any goroutine
//
// INVARIANTS:
//   - Master logical time never decreases
//   - A clock's beat never decreases
//   - Among equal wake times, entries pop in push order
type Engine struct {
	ts         TimeSource
	logger     *slog.Logger
	recorder   Recorder
	policy     TimingPolicy
	sessionGen SessionGenerator
	sessName   string
	behind     float64
	masterRate float64
	limiter    *rate.Limiter
	maxSteps   int
	maxIter    int

	ids    *Sequence
	events *Sequence
	queue  *wakeQueue
	quota  *QuotaEnforcer
	nodes  map[NodeID]*node
	master *node
	tasks  []*task

	session string
	now     float64 // master logical time

	// Wall timing. anchor is the wall time of logical zero; lastWall and
	// lastLogical describe the latest wake.
	anchor      float64
	lastWall    float64
	lastLogical float64

	ffActive bool
	ffGoal   float64

	running    atomic.Pointer[task]
	reaping    []*task
	ran        bool
	closing    bool
	stop       atomic.Bool
	suppressed int
	masterErr  error
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets where trace events go. Default: discarded.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTimingPolicy sets how logical wake times become wall deadlines.
// Default: Absolute().
func WithTimingPolicy(p TimingPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithMaxSteps bounds the number of task resumptions in a session.
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithSessionGenerator sets the session id generator.
// Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.sessionGen = g
		}
	}
}

// WithSessionName sets the name recorded with the session. Default: the
// master clock's name.
func WithSessionName(name string) EngineOption {
	return func(e *Engine) {
		e.sessName = ir.NormalizeName(name)
	}
}

// WithBehindThreshold sets how late a resume may be before a warning.
func WithBehindThreshold(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.behind = d.Seconds()
	}
}

// WithMasterRate sets the master clock's initial rate in beats per second.
func WithMasterRate(r float64) EngineOption {
	return func(e *Engine) {
		e.masterRate = r
	}
}

// WithWarningLimit throttles warning logs. Warnings are always recorded as
// trace events; only the log lines are limited.
func WithWarningLimit(limit rate.Limit, burst int) EngineOption {
	return func(e *Engine) {
		e.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMaxIterations caps the root finding that inverts curved tempo ramps
// on every clock of the session. When the cap is hit the wake falls back to
// the ramp's average rate and a NON_CONVERGENCE warning is raised.
// Default: envelope.DefaultMaxIterations.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		e.maxIter = n
	}
}

// New creates an engine whose master clock is bound to ts.
func New(ts TimeSource, opts ...EngineOption) (*Engine, error) {
	if ts == nil {
		return nil, fmt.Errorf("engine: time source is required")
	}
	e := &Engine{
		ts:         ts,
		logger:     slog.Default(),
		recorder:   nopRecorder{},
		policy:     Absolute(),
		sessionGen: UUIDv7Generator{},
		behind:     DefaultBehindThreshold,
		masterRate: 1,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		maxSteps:   DefaultMaxSteps,
		ids:        NewSequence(),
		events:     NewSequence(),
		queue:      newWakeQueue(),
		nodes:      make(map[NodeID]*node),
	}
	for _, opt := range opts {
		opt(e)
	}

	env, err := envelope.New(e.masterRate)
	if err != nil {
		return nil, fmt.Errorf("master clock: %w", err)
	}
	e.master = e.newNode("master", 0, env, 0)
	e.quota = NewQuotaEnforcer(e.maxSteps)
	e.session = e.sessionGen.Generate()
	return e, nil
}

func (e *Engine) sessionName() string {
	if e.sessName != "" {
		return e.sessName
	}
	return e.master.name
}

func (e *Engine) newNode(name string, parent NodeID, env *envelope.Envelope, offset float64) *node {
	env.MaxIterations = e.maxIter
	n := &node{
		id:     NodeID(e.ids.Next()),
		name:   ir.NormalizeName(name),
		parent: parent,
		env:    env,
		offset: offset,
		state:  Waiting,
	}
	n.handle = &Clock{engine: e, node: n}
	e.nodes[n.id] = n
	return n
}

// Master returns the root clock.
func (e *Engine) Master() *Clock {
	return e.master.handle
}

// Session returns the session id.
func (e *Engine) Session() string {
	return e.session
}

// Now returns the master's logical time.
func (e *Engine) Now() float64 {
	return e.now
}

// Policy returns the timing policy.
func (e *Engine) Policy() TimingPolicy {
	return e.policy
}

// Steps returns the number of resumptions performed so far.
func (e *Engine) Steps() int {
	return e.quota.Current()
}

// Stop asks the scheduler to shut down. Parked tasks are resumed with a
// SESSION_CLOSED error and Run returns nil. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Run binds body to the master clock and drives the tree until the master
// is released, ctx is done, Stop is called or the step quota is exceeded.
//
// Run returns the master body's error on a normal exit. Errors returned by
// other bodies are logged and recorded, not returned.
func (e *Engine) Run(ctx context.Context, body Body) error {
	if e.ran {
		return fmt.Errorf("engine: session %s already ran", e.session)
	}
	if body == nil {
		return fmt.Errorf("engine: master body is required")
	}
	e.ran = true

	e.anchor = e.ts.Now()
	e.lastWall = e.anchor

	sess := ir.Session{
		ID:            e.session,
		Name:          e.sessionName(),
		StartedAtWall: e.anchor,
		Policy:        e.policy.String(),
		EngineVersion: ir.EngineVersion,
	}
	if err := e.recorder.RecordSession(sess); err != nil {
		e.logger.Warn("record session failed", "session", e.session, "error", err)
	}
	e.logger.Info("session starting",
		"session", e.session,
		"policy", e.policy.String(),
		"master_rate", e.masterRate)

	e.master.task = newTask(e.master, body)
	e.tasks = append(e.tasks, e.master.task)
	e.queue.schedule(e.master, 0)

	err := e.loop(ctx)
	if err != nil {
		e.shutdown(err)
	}

	e.logger.Info("session finished",
		"session", e.session,
		"master_time", e.now,
		"steps", e.quota.Current(),
		"events", e.events.Current())

	switch {
	case errors.Is(err, errStopped):
		return nil
	case err != nil:
		return err
	default:
		return e.masterErr
	}
}

// loop is the scheduler: pop the earliest wake, sleep until its deadline,
// advance the tree and hand the scheduler to the woken task.
func (e *Engine) loop(ctx context.Context) error {
	for e.master.state != Released || len(e.reaping) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.stop.Load() {
			return errStopped
		}
		if len(e.reaping) > 0 {
			t := e.reaping[0]
			e.reaping = e.reaping[1:]
			e.dispatch(t, resumeKilled)
			continue
		}

		entry, ok := e.queue.next()
		if !ok {
			return fmt.Errorf("engine: no pending wakes while master is %s", e.master.state)
		}
		if err := e.quota.Check(e.session); err != nil {
			e.logger.Error("max steps quota exceeded",
				"session", e.session,
				"steps", e.quota.Current(),
				"limit", e.maxSteps)
			return err
		}
		n := entry.node
		if err := e.sleepFor(ctx, n, entry.wake); err != nil {
			return err
		}
		e.advance(entry.wake)
		e.wake(n)
	}
	return nil
}

// wake resumes a clock popped from the queue.
func (e *Engine) wake(n *node) {
	if n.hasTarget {
		// Float noise in the conversion chain must not leave the clock a
		// hair short of the beat it asked for.
		if math.Abs(n.beat-n.wakeBeat) <= 1e-9*math.Max(1, math.Abs(n.wakeBeat)) {
			n.beat = n.wakeBeat
		}
		n.hasTarget = false
	}
	n.state = Active
	n.lastResumeWall = e.lastWall

	e.emit(ir.KindResume, n, "", "")
	e.logger.Debug("resuming clock",
		"session", e.session,
		"clock", n.label(),
		"beat", n.beat,
		"master_time", e.now,
		"drift", n.drift)

	e.dispatch(n.task, resumeNormal)
}

// dispatch hands the scheduler to t and blocks until it parks or returns.
func (e *Engine) dispatch(t *task, sig resumeSignal) {
	e.running.Store(t)
	if !t.started {
		t.started = true
		go t.run(e)
	} else {
		t.resume <- sig
	}
	kind := <-t.yield
	e.running.Store(nil)

	if kind == yieldDone {
		e.finishTask(t)
	}
}

// finishTask records a returned body and finishes its clock.
func (e *Engine) finishTask(t *task) {
	t.done = true
	n := t.node

	detail := ""
	if t.err != nil {
		detail = t.err.Error()
		if n == e.master && !(n.killed && IsDeadClock(t.err)) {
			e.masterErr = t.err
		}
		if !IsSessionClosed(t.err) && !IsDeadClock(t.err) {
			e.logger.Error("task failed",
				"session", e.session,
				"clock", n.label(),
				"error", t.err)
		}
	}
	e.emit(ir.KindFinish, n, "", detail)

	if n.state == Released {
		return
	}
	n.state = Finished
	e.tryRelease(n)
}

// tryRelease releases a finished clock that no longer frames any children.
func (e *Engine) tryRelease(n *node) {
	if n.state == Finished && len(n.children) == 0 {
		e.release(n)
	}
}

// release removes n from the tree and cascades to a finished parent.
func (e *Engine) release(n *node) {
	e.queue.cancel(n)
	n.state = Released
	e.emit(ir.KindRelease, n, "", "")
	delete(e.nodes, n.id)

	if p, ok := e.nodes[n.parent]; ok {
		p.removeChild(n.id)
		e.childrenDone(p)
		e.tryRelease(p)
	}
}

// childrenDone wakes a clock parked in WaitForChildren once its last child
// has left the tree.
func (e *Engine) childrenDone(n *node) {
	if n.awaitChildren && len(n.children) == 0 {
		n.awaitChildren = false
		e.queue.schedule(n, e.now)
	}
}

// shutdown resumes every parked task with SESSION_CLOSED so bodies can
// return, then finishes them. Tasks that never started are dropped.
func (e *Engine) shutdown(cause error) {
	e.closing = true
	e.logger.Info("session shutting down", "session", e.session, "cause", cause)

	tasks := append([]*task(nil), e.tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].node.id < tasks[j].node.id })
	for _, t := range tasks {
		if t.done {
			continue
		}
		e.queue.cancel(t.node)
		if !t.started {
			t.done = true
			continue
		}
		e.dispatch(t, resumeClosed)
	}
	e.reaping = nil
}
