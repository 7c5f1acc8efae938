package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/clocktree/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	All      bool   // verify every session in the database
}

// VerifyResult holds the outcome for one session.
type VerifyResult struct {
	Session   string  `json:"session"`
	Name      string  `json:"name"`
	Events    int     `json:"events"`
	LastSeq   int64   `json:"last_seq"`
	TraceHash string  `json:"trace_hash"`
	OK        bool    `json:"ok"`
	Gaps      []int64 `json:"gaps,omitempty"`
	Corrupt   []int64 `json:"corrupt,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check recorded traces for gaps and tampering",
		Long: `Check that a recorded session trace is complete and consistent.

Every event id and canonical payload is re-derived from the stored columns,
and sequence numbers must run from 1 without gaps. The trace hash printed
here matches the one reported by "run" for the same session.

Exit codes:
  0 - Every checked trace is intact
  1 - A trace has gaps or corrupt events
  2 - Command error (database not found, unknown session, etc.)

Examples:
  clocktree verify --db ./clocks.db
  clocktree verify --db ./clocks.db --all --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "verify every session")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.All && opts.Session != "" {
		return NewExitError(ExitCommandError, "--all and --session are mutually exclusive")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var ids, names []string
	if opts.All {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
			names = append(names, s.Name)
		}
	} else {
		sess, err := resolveSession(ctx, st, opts.Session)
		if err != nil {
			return err
		}
		ids = []string{sess.ID}
		names = []string{sess.Name}
	}

	results := make([]VerifyResult, 0, len(ids))
	broken := 0
	for i, id := range ids {
		v, err := st.VerifySession(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to verify session", err)
		}
		if !v.OK() {
			broken++
		}
		results = append(results, VerifyResult{
			Session:   v.Session,
			Name:      names[i],
			Events:    v.Events,
			LastSeq:   v.LastSeq,
			TraceHash: v.TraceHash,
			OK:        v.OK(),
			Gaps:      v.Gaps,
			Corrupt:   v.Corrupt,
		})
	}

	var lines []string
	for _, r := range results {
		if r.OK {
			lines = append(lines, fmt.Sprintf("✓ %s (%s): %d events, hash %s", r.Session, r.Name, r.Events, r.TraceHash))
			continue
		}
		lines = append(lines, fmt.Sprintf("✗ %s (%s): %d events", r.Session, r.Name, r.Events))
		if len(r.Gaps) > 0 {
			lines = append(lines, fmt.Sprintf("  missing seqs: %v", r.Gaps))
		}
		if len(r.Corrupt) > 0 {
			lines = append(lines, fmt.Sprintf("  corrupt seqs: %v", r.Corrupt))
		}
	}
	if len(results) == 0 {
		lines = append(lines, "No sessions found.")
	}

	var cliErr *CLIError
	if broken > 0 {
		cliErr = &CLIError{
			Code:    "E_TRACE_BROKEN",
			Message: fmt.Sprintf("%d session(s) failed verification", broken),
		}
	}
	session := ""
	if len(ids) == 1 {
		session = ids[0]
	}
	if err := newFormatter(opts.RootOptions, cmd).Emit(session, results, lines, cliErr); err != nil {
		return err
	}
	if cliErr != nil {
		return NewExitError(ExitFailure, cliErr.Message)
	}
	return nil
}
