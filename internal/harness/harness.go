package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/clocktree/internal/engine"
	"github.com/roach88/clocktree/internal/ir"
	"github.com/roach88/clocktree/internal/store"
	"github.com/roach88/clocktree/internal/testutil"
)

// RunOption configures a scenario run.
type RunOption func(*runConfig)

type runConfig struct {
	store      *store.Store
	timeSource engine.TimeSource
	sessionGen engine.SessionGenerator
	logger     *slog.Logger
}

// WithStore records the run into st instead of a fresh in-memory
// database. The caller keeps ownership of st.
func WithStore(st *store.Store) RunOption {
	return func(c *runConfig) {
		c.store = st
	}
}

// WithTimeSource runs the scenario against ts instead of a virtual clock.
// Compute steps sleep for real unless ts can advance itself.
func WithTimeSource(ts engine.TimeSource) RunOption {
	return func(c *runConfig) {
		c.timeSource = ts
	}
}

// WithSessionGenerator sets the session id generator. It takes precedence
// over the scenario's session field. Default: the scenario's session, or
// "test-session-default".
func WithSessionGenerator(g engine.SessionGenerator) RunOption {
	return func(c *runConfig) {
		c.sessionGen = g
	}
}

// WithLogger sets the logger passed to the engine. Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// advancer is implemented by time sources that model computation cost
// without sleeping.
type advancer interface {
	Advance(d float64)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, on a
// virtual clock, under a fixed session id, so two runs of the same
// scenario produce identical traces.
//
// Execution flow:
// 1. Open the store and build the engine from the scenario settings
// 2. Bind the master voice to the master clock and run the tree
// 3. Read the trace back from the store and verify it
// 4. Collect final clock states and evaluate assertions
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context. Cancelling ctx stops
// the session and returns the context's error.
func RunContext(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		mem, err := store.OpenMemory()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer mem.Close()
		st = mem
	}

	ts := cfg.timeSource
	if ts == nil {
		ts = engine.NewVirtualTimeSource(0)
	}

	// A caller's generator wins over the scenario's session so repeated
	// runs into one store get distinct sessions.
	sessionGen := cfg.sessionGen
	if sessionGen == nil {
		sessionGen = testutil.NewFixedSessionGenerator(scenario.Session)
	}

	policy, err := engine.ParsePolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(cfg.logger),
		engine.WithRecorder(store.NewRecorder(ctx, st)),
		engine.WithTimingPolicy(policy),
		engine.WithSessionGenerator(sessionGen),
		engine.WithSessionName(scenario.Name),
		engine.WithMaxSteps(scenario.MaxSteps),
	}
	if scenario.MasterRate > 0 {
		engineOpts = append(engineOpts, engine.WithMasterRate(scenario.MasterRate))
	}
	eng, err := engine.New(ts, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	exists, err := st.HasSession(ctx, eng.Session())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("scenario %s: session %s is already recorded", scenario.Name, eng.Session())
	}

	r := &runner{
		ts:     ts,
		clocks: make(map[string]*engine.Clock),
		failed: make(map[string]error),
	}

	result := NewResult()
	result.Session = eng.Session()

	runErr := eng.Run(ctx, r.body(&scenario.Master))
	if runErr != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, runErr)
	}
	switch {
	case runErr == nil:
	case engine.IsStepsExceededError(runErr):
		result.AddError(runErr.Error())
	default:
		r.fail(scenario.Master.voiceName(), runErr)
	}

	if err := r.collect(ctx, st, result); err != nil {
		return nil, err
	}
	result.MasterTime = eng.Now()
	result.Steps = eng.Steps()

	for _, name := range r.failedNames() {
		result.AddError(fmt.Sprintf("voice %q: %v", name, r.failed[name]))
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	cfg.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"session", result.Session,
		"events", len(result.Trace),
		"master_time", result.MasterTime,
		"pass", result.Pass)

	return result, nil
}

// runner turns voices into task bodies. Bodies only touch the runner
// while they hold the scheduler, one at a time.
type runner struct {
	ts     engine.TimeSource
	clocks map[string]*engine.Clock
	failed map[string]error
}

func (r *runner) fail(name string, err error) {
	if _, seen := r.failed[name]; !seen {
		r.failed[name] = err
	}
}

func (r *runner) failedNames() []string {
	names := make([]string, 0, len(r.failed))
	for name := range r.failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// body returns the task body for v. A voice whose own clock was killed
// ends quietly; any other error fails the scenario.
func (r *runner) body(v *Voice) engine.Body {
	name := v.voiceName()
	return func(c *engine.Clock) error {
		r.clocks[name] = c
		err := r.steps(c, v.Steps)
		switch {
		case err == nil:
			return nil
		case engine.IsDeadClock(err) && c.State() == engine.Released:
			return nil
		case engine.IsSessionClosed(err):
			return err
		}
		if !c.IsMaster() {
			r.fail(name, err)
		}
		return err
	}
}

func (r *runner) steps(c *engine.Clock, steps []Step) error {
	for i := range steps {
		if err := r.step(c, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) step(c *engine.Clock, st *Step) error {
	switch {
	case st.Wait != nil:
		return c.Wait(*st.Wait)
	case st.SetTempo != nil:
		return c.SetTempo(*st.SetTempo)
	case st.SetBPM != nil:
		return c.SetBPM(*st.SetBPM)
	case st.SetTempoTarget != nil:
		tt := st.SetTempoTarget
		units, err := tt.units()
		if err != nil {
			return err
		}
		shape, err := tt.shape()
		if err != nil {
			return err
		}
		return c.SetTempoTarget(tt.Rate, tt.Duration, units, shape, tt.Curvature)
	case st.Fork != nil:
		child, err := c.Fork(engine.ForkOptions{
			Name:        st.Fork.Name,
			InitialRate: st.Fork.Rate,
		}, r.body(st.Fork))
		if err != nil {
			return err
		}
		r.clocks[st.Fork.Name] = child
		return nil
	case st.Kill != nil:
		target, ok := r.clocks[*st.Kill]
		if !ok {
			return fmt.Errorf("kill %q: voice has not been forked", *st.Kill)
		}
		return target.Kill()
	case st.Mark != nil:
		return c.Mark(*st.Mark)
	case st.Compute != nil:
		r.compute(*st.Compute)
		return nil
	case st.Repeat != nil:
		for i := 0; i < st.Repeat.Times; i++ {
			if err := r.steps(c, st.Repeat.Steps); err != nil {
				return err
			}
		}
		return nil
	case st.FastForward != nil:
		return c.FastForwardBy(*st.FastForward)
	case st.WaitForChildren != nil:
		if !*st.WaitForChildren {
			return nil
		}
		return c.WaitForChildren()
	}
	return fmt.Errorf("empty step")
}

// compute spends d seconds of wall time.
func (r *runner) compute(d float64) {
	if a, ok := r.ts.(advancer); ok {
		a.Advance(d)
		return
	}
	time.Sleep(time.Duration(d * float64(time.Second)))
}

// collect reads the trace back from the store, verifies it, and snapshots
// the final clock states.
func (r *runner) collect(ctx context.Context, st *store.Store, result *Result) error {
	events, err := st.ReadEvents(ctx, result.Session, store.EventFilter{})
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	result.Trace = events

	v, err := st.VerifySession(ctx, result.Session)
	if err != nil {
		return fmt.Errorf("verify trace: %w", err)
	}
	if !v.OK() {
		result.AddError(fmt.Sprintf("trace incomplete: gaps=%v corrupt=%v", v.Gaps, v.Corrupt))
	}
	result.TraceHash = v.TraceHash

	for name, c := range r.clocks {
		result.States[name] = ClockState{
			Name:  c.Name(),
			State: c.State().String(),
			Beat:  c.Beat(),
			Time:  c.Time(),
		}
	}
	return nil
}

// TraceView renders one event as a single line, for logs and the CLI.
func TraceView(ev ir.Event) string {
	line := fmt.Sprintf("%4d  %-8s %-10s beat=%-10s time=%-10s master=%s",
		ev.Seq, ev.Kind, ev.ClockName, ir.Decimal(ev.Beat), ir.Decimal(ev.Time), ir.Decimal(ev.MasterTime))
	if ev.Label != "" {
		line += "  " + ev.Label
	}
	if ev.Detail != "" {
		line += "  (" + ev.Detail + ")"
	}
	return line
}
