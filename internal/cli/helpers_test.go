package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clocktree/internal/harness"
	"github.com/roach88/clocktree/internal/store"
)

const pulseScenario = `name: pulse
master_rate: 2
master:
  steps:
    - mark: start
    - wait: 1
    - mark: end
assertions:
  - type: mark_at
    label: end
    time: 0.5
`

const failingScenario = `name: late
master:
  steps:
    - wait: 1
    - mark: end
assertions:
  - type: mark_at
    label: end
    time: 3
`

const invalidScenario = `name: broken
master:
  steps:
    - wait: -1
`

func writeScenario(t *testing.T, dir, file, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// recordSession runs the pulse scenario into a database file under session
// id session and returns the database path.
func recordSession(t *testing.T, dbPath, session string) string {
	t.Helper()

	path := writeScenario(t, t.TempDir(), "pulse.yaml", pulseScenario)
	scenario, err := harness.LoadScenario(path)
	require.NoError(t, err)
	scenario.Session = session

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	result, err := harness.Run(scenario, harness.WithStore(st))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	return dbPath
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
