package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/clocktree/internal/harness"
	"github.com/roach88/clocktree/internal/ir"
	"github.com/roach88/clocktree/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string   // optional - defaults to the latest session
	Clock    string   // optional - filter to one clock name
	Kinds    []string // optional - filter to event kinds
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  ir.Session `json:"session"`
	Timeline []ir.Event `json:"timeline"`
	Stats    TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Shown       int            `json:"shown"`
	Clocks      int            `json:"clocks"`
	ByKind      map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print a recorded session timeline",
		Long: `Print the events of a session recorded with "run --db".

Without --session the most recent session is shown. --clock and --kind
narrow the timeline; the stats always cover the whole session.

Examples:
  clocktree trace --db ./clocks.db
  clocktree trace --db ./clocks.db --clock hats --kind mark
  clocktree trace --db ./clocks.db --session 0192... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Clock, "clock", "", "filter to one clock name")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "filter to event kinds (repeatable)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	filter := store.EventFilter{ClockName: opts.Clock}
	for _, k := range opts.Kinds {
		kind := ir.EventKind(k)
		if !kind.Valid() {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q: must be one of %v", k, ir.Kinds))
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := resolveSession(ctx, st, opts.Session)
	if err != nil {
		return err
	}

	all, err := st.ReadEvents(ctx, sess.ID, store.EventFilter{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	timeline := all
	if filter.ClockName != "" || len(filter.Kinds) > 0 {
		timeline, err = st.ReadEvents(ctx, sess.ID, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
	}

	result := TraceResult{
		Session:  sess,
		Timeline: timeline,
		Stats:    traceStats(all, len(timeline)),
	}

	return newFormatter(opts.RootOptions, cmd).Emit(sess.ID, result, traceLines(result, opts.Verbose), nil)
}

func traceStats(events []ir.Event, shown int) TraceStats {
	stats := TraceStats{
		TotalEvents: len(events),
		Shown:       shown,
		ByKind:      make(map[string]int),
	}
	clocks := make(map[int64]bool)
	for _, ev := range events {
		clocks[ev.Clock] = true
		stats.ByKind[string(ev.Kind)]++
	}
	stats.Clocks = len(clocks)
	return stats
}

func traceLines(result TraceResult, verbose bool) []string {
	lines := []string{
		fmt.Sprintf("Trace for Session: %s", result.Session.ID),
		fmt.Sprintf("Scenario: %s  Policy: %s", result.Session.Name, result.Session.Policy),
		"",
		"=== Timeline ===",
	}
	if len(result.Timeline) == 0 {
		lines = append(lines, "  (no events)")
	}
	for _, ev := range result.Timeline {
		lines = append(lines, "  "+harness.TraceView(ev))
		if verbose {
			lines = append(lines, fmt.Sprintf("        ID: %s", truncateID(ev.ID)))
		}
	}

	lines = append(lines, "",
		"=== Stats ===",
		fmt.Sprintf("  Total Events: %d", result.Stats.TotalEvents),
		fmt.Sprintf("  Shown:        %d", result.Stats.Shown),
		fmt.Sprintf("  Clocks:       %d", result.Stats.Clocks))
	for _, kind := range ir.Kinds {
		if n := result.Stats.ByKind[string(kind)]; n > 0 {
			lines = append(lines, fmt.Sprintf("  %-13s %d", string(kind)+":", n))
		}
	}
	return lines
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
