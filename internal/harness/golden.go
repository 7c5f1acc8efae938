package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/clocktree/internal/ir"
)

// Snapshot renders a result's trace for golden comparison: a canonical
// JSON header line followed by one canonical JSON line per event.
//
// Event lines leave out ids and wall times, so a snapshot records only
// the logical content of a run.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	header := ir.IRObject{
		"scenario_name": ir.IRString(scenarioName),
		"session":       ir.IRString(result.Session),
		"events":        ir.IRInt(len(result.Trace)),
	}
	line, err := ir.MarshalCanonical(header)
	if err != nil {
		return nil, fmt.Errorf("snapshot header: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	for _, ev := range result.Trace {
		line, err := ir.MarshalCanonical(ev)
		if err != nil {
			return nil, fmt.Errorf("snapshot event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check assertions as well. Test
// failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	newGoldie(t).Assert(t, scenarioName, snapshot)
	return nil
}
