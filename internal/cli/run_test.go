package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clocktree/internal/engine"
	"github.com/roach88/clocktree/internal/store"
)

func TestRunMissingScenarioArg(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunNonExistentScenario(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunInvalidScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken.yaml", invalidScenario)

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunPrintsTimeline(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "pulse.yaml", pulseScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Contains(t, out, "mark     master")
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "Scenario: pulse")
	assert.Contains(t, out, "Session: test-session-default")
	assert.Contains(t, out, "Events: 7")
	assert.Contains(t, out, "Master time: 0.5")
}

func TestRunFailingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "late.yaml", failingScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_SCENARIO_FAILED]")
	assert.Contains(t, out, "mark_at")
}

func TestRunJSONOutput(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "pulse.yaml", pulseScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status  string     `json:"status"`
		Session string     `json:"session"`
		Data    RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-session-default", resp.Session)
	assert.Equal(t, "pulse", resp.Data.Scenario)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, 7, resp.Data.Events)
	assert.InDelta(t, 0.5, resp.Data.MasterTime, 1e-9)
	assert.NotEmpty(t, resp.Data.TraceHash)
	assert.Equal(t, "released", resp.Data.States["master"].State)
}

func TestRunRecordsToDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeScenario(t, tmpDir, "pulse.yaml", pulseScenario)
	dbPath := filepath.Join(tmpDir, "clocks.db")

	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		opts.Database = dbPath
		opts.SessionGenerator = engine.NewFixedGenerator("recorded-1")
		return runScenarioFile(opts, args[0], c)
	}
	_, err := execute(t, cmd, path)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(context.Background(), "recorded-1")
	require.NoError(t, err)
	assert.Equal(t, "pulse", sess.Name)

	n, err := st.CountEvents(context.Background(), "recorded-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRunRepeatedIntoDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeScenario(t, tmpDir, "pinned.yaml", "session: pinned\n"+pulseScenario)
	dbPath := filepath.Join(tmpDir, "clocks.db")

	for i := 0; i < 2; i++ {
		_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, path)
		require.NoError(t, err, "run %d", i)
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2, "each run records its own session")
	assert.NotEqual(t, sessions[0].ID, sessions[1].ID)
	for _, sess := range sessions {
		assert.NotEqual(t, "pinned", sess.ID)
		n, err := st.CountEvents(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	}
}

func TestRunCancelledContext(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "pulse.yaml", pulseScenario)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetContext(ctx)
	_, err := execute(t, cmd, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
