package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
policy: relative
master_rate: 2
master:
  steps:
    - set_bpm: 90
    - fork:
        name: bass
        rate: 0.5
        steps:
          - wait: 1
    - wait: 2
    - mark: done
assertions:
  - type: mark_count
    label: done
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, "relative", scenario.Policy)
	assert.Equal(t, 2.0, scenario.MasterRate)
	require.Len(t, scenario.Master.Steps, 4)
	require.NotNil(t, scenario.Master.Steps[0].SetBPM)
	assert.Equal(t, 90.0, *scenario.Master.Steps[0].SetBPM)
	require.NotNil(t, scenario.Master.Steps[1].Fork)
	assert.Equal(t, "bass", scenario.Master.Steps[1].Fork.Name)
	assert.Equal(t, 0.5, scenario.Master.Steps[1].Fork.Rate)
	require.Len(t, scenario.Assertions, 1)
	require.NotNil(t, scenario.Assertions[0].Count)
	assert.Equal(t, 1, *scenario.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
master:
  steps:
    - wiat: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_TempoTarget(t *testing.T) {
	path := writeScenario(t, `
name: ramp
master:
  steps:
    - set_tempo_target:
        rate: 4
        duration: 8
        units: beats
        shape: curved
        curvature: -2
    - wait: 8
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	tt := scenario.Master.Steps[0].SetTempoTarget
	require.NotNil(t, tt)
	assert.Equal(t, 4.0, tt.Rate)
	assert.Equal(t, 8.0, tt.Duration)
	assert.Equal(t, "beats", tt.Units)
	assert.Equal(t, "curved", tt.Shape)
	assert.Equal(t, -2.0, tt.Curvature)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
master:
  steps:
    - wait: 1
`,
			wantErr: "name",
		},
		{
			name: "negative wait",
			content: `
name: neg
master:
  steps:
    - wait: -1
`,
			wantErr: "schema",
		},
		{
			name: "curvature out of range",
			content: `
name: steep
master:
  steps:
    - set_tempo_target:
        rate: 2
        duration: 10
        shape: curved
        curvature: 800
`,
			wantErr: "schema",
		},
		{
			name: "zero tempo",
			content: `
name: zero
master:
  steps:
    - set_tempo: 0
`,
			wantErr: "schema",
		},
		{
			name: "two instructions in one step",
			content: `
name: double
master:
  steps:
    - wait: 1
      mark: a
`,
			wantErr: "schema",
		},
		{
			name: "unknown shape",
			content: `
name: shape
master:
  steps:
    - set_tempo_target: {rate: 2, duration: 1, shape: wobbly}
`,
			wantErr: "schema",
		},
		{
			name: "bad policy",
			content: `
name: policy
policy: sometimes
master:
  steps:
    - wait: 1
`,
			wantErr: "invalid timing policy",
		},
		{
			name: "kill unknown voice",
			content: `
name: kill
master:
  steps:
    - kill: ghost
`,
			wantErr: `unknown voice "ghost"`,
		},
		{
			name: "duplicate voice",
			content: `
name: dup
master:
  steps:
    - fork: {name: a, steps: [{wait: 1}]}
    - fork: {name: a, steps: [{wait: 1}]}
`,
			wantErr: `duplicate voice name "a"`,
		},
		{
			name: "fork without name",
			content: `
name: anon
master:
  steps:
    - fork: {steps: [{wait: 1}]}
`,
			wantErr: "fork requires a name",
		},
		{
			name: "fast forward on child",
			content: `
name: ff
master:
  steps:
    - fork: {name: a, steps: [{fast_forward: 1}]}
`,
			wantErr: "only allowed on the master voice",
		},
		{
			name: "master renamed",
			content: `
name: renamed
master:
  name: conductor
  steps:
    - wait: 1
`,
			wantErr: `voice must be named "master"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: assert
master:
  steps:
    - wait: 1
assertions:
  - type: trace_contains
`,
			wantErr: "schema",
		},
		{
			name: "mark_at without time or beat",
			content: `
name: assert
master:
  steps:
    - mark: a
assertions:
  - type: mark_at
    label: a
`,
			wantErr: "mark_at requires time or beat",
		},
		{
			name: "assertion on unknown voice",
			content: `
name: assert
master:
  steps:
    - mark: a
assertions:
  - type: final_state
    clock: ghost
    state: released
`,
			wantErr: `unknown voice "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTempoTarget_ValidateCurvature(t *testing.T) {
	tt := TempoTarget{Rate: 2, Duration: 10, Shape: "curved", Curvature: 800}
	err := tt.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curvature must be within")

	tt.Curvature = 500
	assert.NoError(t, tt.validate())

	// Curvature is ignored by the other shapes.
	tt = TempoTarget{Rate: 2, Duration: 10, Shape: "linear", Curvature: 800}
	assert.NoError(t, tt.validate())
}

func TestStepFieldCount(t *testing.T) {
	one := 1.0
	label := "a"
	assert.Equal(t, 0, (&Step{}).fieldCount())
	assert.Equal(t, 1, (&Step{Wait: &one}).fieldCount())
	assert.Equal(t, 2, (&Step{Wait: &one, Mark: &label}).fieldCount())

	join := true
	assert.Equal(t, 1, (&Step{WaitForChildren: &join}).fieldCount())
}
