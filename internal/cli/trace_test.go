package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clocktree/internal/ir"
)

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database has no sessions")
}

func TestTraceUnknownSession(t *testing.T) {
	dbPath := recordSession(t, filepath.Join(t.TempDir(), "clocks.db"), "session-a")

	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session not found: nope")
}

func TestTraceUnknownKind(t *testing.T) {
	dbPath := recordSession(t, filepath.Join(t.TempDir(), "clocks.db"), "session-a")

	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--kind", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown event kind "bogus"`)
}

func TestTraceLatestSessionText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "clocks.db")
	recordSession(t, dbPath, "session-a")
	recordSession(t, dbPath, "session-b")

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Session: session-b")
	assert.Contains(t, out, "Scenario: pulse  Policy: absolute")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "Total Events: 7")
	assert.Contains(t, out, "mark:")
}

func TestTraceFilterJSON(t *testing.T) {
	dbPath := recordSession(t, filepath.Join(t.TempDir(), "clocks.db"), "session-a")

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--session", "session-a", "--clock", "master", "--kind", "mark")
	require.NoError(t, err)

	var resp struct {
		Status  string      `json:"status"`
		Session string      `json:"session"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "session-a", resp.Session)
	assert.Equal(t, "pulse", resp.Data.Session.Name)

	require.Len(t, resp.Data.Timeline, 2)
	assert.Equal(t, "start", resp.Data.Timeline[0].Label)
	assert.Equal(t, "end", resp.Data.Timeline[1].Label)
	for _, ev := range resp.Data.Timeline {
		assert.Equal(t, ir.KindMark, ev.Kind)
	}

	assert.Equal(t, 7, resp.Data.Stats.TotalEvents)
	assert.Equal(t, 2, resp.Data.Stats.Shown)
	assert.Equal(t, 1, resp.Data.Stats.Clocks)
	assert.Equal(t, 2, resp.Data.Stats.ByKind["resume"])
}

func TestTraceStats(t *testing.T) {
	events := []ir.Event{
		{Clock: 1, Kind: ir.KindResume},
		{Clock: 2, Kind: ir.KindFork},
		{Clock: 2, Kind: ir.KindMark},
		{Clock: 1, Kind: ir.KindMark},
	}
	stats := traceStats(events, 2)
	assert.Equal(t, 4, stats.TotalEvents)
	assert.Equal(t, 2, stats.Shown)
	assert.Equal(t, 2, stats.Clocks)
	assert.Equal(t, 2, stats.ByKind["mark"])
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}
