package harness

import "github.com/roach88/clocktree/internal/ir"

// ClockState is where a voice's clock ended up after a run.
type ClockState struct {
	Name  string  `json:"name"`
	State string  `json:"state"`
	Beat  float64 `json:"beat"`
	Time  float64 `json:"time"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every voice ran without error and all assertions hold.
	Pass bool `json:"pass"`

	// Session is the id the run was recorded under.
	Session string `json:"session"`

	// Trace contains every recorded event in seq order, as read back
	// from the store.
	Trace []ir.Event `json:"trace"`

	// TraceHash fingerprints the logical content of the trace.
	TraceHash string `json:"trace_hash"`

	// Errors contains voice failures and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States maps voice names to their final clock states.
	States map[string]ClockState `json:"states,omitempty"`

	// MasterTime is the master's logical time when the run ended.
	MasterTime float64 `json:"master_time"`

	// Steps is the number of task resumptions the run took.
	Steps int `json:"steps"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.Event{},
		Errors: []string{},
		States: make(map[string]ClockState),
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Marks returns the mark events in trace order, optionally restricted to
// one clock name.
func (r *Result) Marks(clock string) []ir.Event {
	var out []ir.Event
	for _, ev := range r.Trace {
		if ev.Kind != ir.KindMark {
			continue
		}
		if clock != "" && ev.ClockName != clock {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Warnings returns the warning events in trace order.
func (r *Result) Warnings() []ir.Event {
	var out []ir.Event
	for _, ev := range r.Trace {
		if ev.Kind == ir.KindWarning {
			out = append(out, ev)
		}
	}
	return out
}
