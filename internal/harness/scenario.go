package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/clocktree/internal/engine"
	"github.com/roach88/clocktree/internal/envelope"
)

// Scenario defines a clock tree session to execute.
// A scenario describes the master voice, the voices it forks, and
// assertions on the resulting trace and final clock states.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Policy is the timing policy: "absolute" (default), "relative" or
	// "mixed(p)".
	Policy string `yaml:"policy,omitempty"`

	// MasterRate is the master's initial rate in beats per second.
	// Zero means 1.
	MasterRate float64 `yaml:"master_rate,omitempty"`

	// Session is an optional fixed session id. If empty, defaults to
	// "test-session-default" for deterministic golden file comparison.
	// A session generator passed to the run takes precedence.
	Session string `yaml:"session,omitempty"`

	// MaxSteps bounds the number of resumptions. Zero means unlimited.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Master is the voice bound to the master clock.
	Master Voice `yaml:"master"`

	// Assertions validate the trace and the final clock states.
	// Supported types: mark_at, mark_order, mark_count, final_state,
	// no_warnings
	Assertions []Assertion `yaml:"assertions"`
}

// Voice is the body of one clock: a name, an initial rate and the steps
// it performs.
type Voice struct {
	// Name labels the clock. Kill steps and assertions refer to it.
	Name string `yaml:"name"`

	// Rate is the initial rate relative to the parent's beats. Zero means 1.
	// Ignored on the master voice; use Scenario.MasterRate.
	Rate float64 `yaml:"rate,omitempty"`

	// Steps run in order. A voice finishes when its steps run out.
	Steps []Step `yaml:"steps"`
}

// Step is one instruction in a voice. Exactly one field is set.
type Step struct {
	// Wait suspends the voice for this many of its own beats.
	Wait *float64 `yaml:"wait,omitempty"`

	// SetTempo sets a constant rate in beats per unit of the clock's time.
	SetTempo *float64 `yaml:"set_tempo,omitempty"`

	// SetBPM sets a constant rate in beats per minute.
	SetBPM *float64 `yaml:"set_bpm,omitempty"`

	// SetTempoTarget starts a ramp to a new rate.
	SetTempoTarget *TempoTarget `yaml:"set_tempo_target,omitempty"`

	// Fork starts a child voice on this clock. The child runs before this
	// voice's next wait completes.
	Fork *Voice `yaml:"fork,omitempty"`

	// Kill removes the named voice's clock from the tree.
	Kill *string `yaml:"kill,omitempty"`

	// Mark records a labelled trace event.
	Mark *string `yaml:"mark,omitempty"`

	// Compute spends this many seconds of wall time, modelling heavy work
	// between waits.
	Compute *float64 `yaml:"compute,omitempty"`

	// Repeat runs a block of steps several times.
	Repeat *Repeat `yaml:"repeat,omitempty"`

	// FastForward skips sleeping for this much master time. Master only.
	FastForward *float64 `yaml:"fast_forward,omitempty"`

	// WaitForChildren suspends the voice until every voice it forked has
	// finished. Only true is meaningful.
	WaitForChildren *bool `yaml:"wait_for_children,omitempty"`
}

// TempoTarget describes a tempo ramp.
type TempoTarget struct {
	Rate      float64 `yaml:"rate"`
	Duration  float64 `yaml:"duration"`
	Units     string  `yaml:"units,omitempty"` // "time" (default) or "beats"
	Shape     string  `yaml:"shape,omitempty"` // "linear" (default), "exponential", "curved", "fixed"
	Curvature float64 `yaml:"curvature,omitempty"`
}

// Repeat is a block of steps run Times times.
type Repeat struct {
	Times int    `yaml:"times"`
	Steps []Step `yaml:"steps"`
}

// Assertion validates the trace or the final clock states.
type Assertion struct {
	// Type specifies the assertion type:
	// - "mark_at": a mark happened at a master time and/or clock beat
	// - "mark_order": marks appear in this order
	// - "mark_count": a mark appears exactly N times
	// - "final_state": a clock ended in a state and/or at a beat
	// - "no_warnings": no warning events were recorded
	Type string `yaml:"type"`

	// Label is the mark label (used by mark_at, mark_count).
	Label string `yaml:"label,omitempty"`

	// Clock restricts marks to one voice, or names the voice checked by
	// final_state.
	Clock string `yaml:"clock,omitempty"`

	// Occurrence selects which matching mark mark_at checks, counting
	// from 1. Zero means the first.
	Occurrence int `yaml:"occurrence,omitempty"`

	// Time is the expected master time (used by mark_at).
	Time *float64 `yaml:"time,omitempty"`

	// Beat is the expected beat of the clock (used by mark_at,
	// final_state).
	Beat *float64 `yaml:"beat,omitempty"`

	// Tolerance bounds the allowed difference for Time and Beat.
	// Zero means DefaultTolerance.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Labels is the expected mark order (used by mark_order).
	Labels []string `yaml:"labels,omitempty"`

	// Count is the expected number of marks (used by mark_count).
	Count *int `yaml:"count,omitempty"`

	// State is the expected lifecycle state (used by final_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertMarkAt      = "mark_at"
	AssertMarkOrder   = "mark_order"
	AssertMarkCount   = "mark_count"
	AssertFinalState  = "final_state"
	AssertNoWarnings  = "no_warnings"
	DefaultTolerance  = 1e-6
	defaultSessionID  = "test-session-default"
	defaultMasterName = "master"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// The schema sees the document as written, before Go defaults apply.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: voice names, kill
// targets and the values that need parsing.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	if s.Policy != "" {
		if _, err := engine.ParsePolicy(s.Policy); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	if s.MasterRate < 0 {
		return fmt.Errorf("master_rate must be positive, got %g", s.MasterRate)
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative, got %d", s.MaxSteps)
	}
	if s.Master.Rate != 0 {
		return fmt.Errorf("master: rate is set by master_rate")
	}
	if s.Master.voiceName() != defaultMasterName {
		return fmt.Errorf("master: voice must be named %q, got %q", defaultMasterName, s.Master.Name)
	}

	names := map[string]bool{s.Master.voiceName(): true}
	var kills []string
	if err := validateSteps("master", s.Master.Steps, true, names, &kills); err != nil {
		return err
	}
	for _, k := range kills {
		if !names[k] {
			return fmt.Errorf("kill: unknown voice %q", k)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, names); err != nil {
			return fmt.Errorf("assertion[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSteps(path string, steps []Step, master bool, names map[string]bool, kills *[]string) error {
	for i, st := range steps {
		where := fmt.Sprintf("%s.steps[%d]", path, i)
		if n := st.fieldCount(); n != 1 {
			return fmt.Errorf("%s: exactly one instruction expected, found %d", where, n)
		}
		switch {
		case st.Wait != nil && *st.Wait < 0:
			return fmt.Errorf("%s: wait must not be negative", where)
		case st.SetTempo != nil && *st.SetTempo <= 0:
			return fmt.Errorf("%s: set_tempo must be positive", where)
		case st.SetBPM != nil && *st.SetBPM <= 0:
			return fmt.Errorf("%s: set_bpm must be positive", where)
		case st.Compute != nil && *st.Compute < 0:
			return fmt.Errorf("%s: compute must not be negative", where)
		case st.FastForward != nil && !master:
			return fmt.Errorf("%s: fast_forward is only allowed on the master voice", where)
		case st.Kill != nil:
			*kills = append(*kills, *st.Kill)
		case st.SetTempoTarget != nil:
			if err := st.SetTempoTarget.validate(); err != nil {
				return fmt.Errorf("%s: set_tempo_target: %w", where, err)
			}
		case st.Repeat != nil:
			if st.Repeat.Times < 1 {
				return fmt.Errorf("%s: repeat.times must be at least 1", where)
			}
			if err := validateSteps(where+".repeat", st.Repeat.Steps, master, names, kills); err != nil {
				return err
			}
		case st.Fork != nil:
			v := st.Fork
			if v.Name == "" {
				return fmt.Errorf("%s: fork requires a name", where)
			}
			if names[v.Name] {
				return fmt.Errorf("%s: duplicate voice name %q", where, v.Name)
			}
			if v.Rate < 0 {
				return fmt.Errorf("%s: fork rate must be positive", where)
			}
			names[v.Name] = true
			if err := validateSteps(v.Name, v.Steps, false, names, kills); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TempoTarget) validate() error {
	if t.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %g", t.Rate)
	}
	if _, err := t.units(); err != nil {
		return err
	}
	shape, err := t.shape()
	if err != nil {
		return err
	}
	if shape == envelope.Curved && !envelope.ValidCurvature(t.Curvature) {
		return fmt.Errorf("curvature must be within ±%g, got %g", envelope.MaxCurvature, t.Curvature)
	}
	return nil
}

func (t *TempoTarget) units() (envelope.Units, error) {
	return envelope.ParseUnits(t.Units)
}

func (t *TempoTarget) shape() (envelope.Shape, error) {
	return envelope.ParseShape(t.Shape)
}

func validateAssertion(a Assertion, names map[string]bool) error {
	if a.Clock != "" && !names[a.Clock] {
		return fmt.Errorf("unknown voice %q", a.Clock)
	}
	switch a.Type {
	case AssertMarkAt:
		if a.Label == "" {
			return fmt.Errorf("mark_at requires label")
		}
		if a.Time == nil && a.Beat == nil {
			return fmt.Errorf("mark_at requires time or beat")
		}
	case AssertMarkOrder:
		if len(a.Labels) < 2 {
			return fmt.Errorf("mark_order requires at least 2 labels")
		}
	case AssertMarkCount:
		if a.Label == "" {
			return fmt.Errorf("mark_count requires label")
		}
		if a.Count == nil {
			return fmt.Errorf("mark_count requires count")
		}
	case AssertFinalState:
		if a.Clock == "" {
			return fmt.Errorf("final_state requires clock")
		}
		if a.State == "" && a.Beat == nil {
			return fmt.Errorf("final_state requires state or beat")
		}
	case AssertNoWarnings:
	case "":
		return fmt.Errorf("missing assertion type")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	return nil
}

func (v *Voice) voiceName() string {
	if v.Name == "" {
		return defaultMasterName
	}
	return v.Name
}

func (s *Step) fieldCount() int {
	n := 0
	for _, set := range []bool{
		s.Wait != nil, s.SetTempo != nil, s.SetBPM != nil,
		s.SetTempoTarget != nil, s.Fork != nil, s.Kill != nil,
		s.Mark != nil, s.Compute != nil, s.Repeat != nil,
		s.FastForward != nil, s.WaitForChildren != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
