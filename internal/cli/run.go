package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/clocktree/internal/engine"
	"github.com/roach88/clocktree/internal/harness"
	"github.com/roach88/clocktree/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Realtime bool

	// SessionGenerator allows overriding the session id generator (for testing).
	// If nil, recorded runs use UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// RunSummary is the JSON payload of the run command.
type RunSummary struct {
	Scenario   string                        `json:"scenario"`
	Session    string                        `json:"session"`
	Pass       bool                          `json:"pass"`
	Events     int                           `json:"events"`
	MasterTime float64                       `json:"master_time"`
	Steps      int                           `json:"steps"`
	TraceHash  string                        `json:"trace_hash"`
	States     map[string]harness.ClockState `json:"states,omitempty"`
	Errors     []string                      `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its timeline",
		Long: `Run one scenario and print the resulting event timeline.

By default the scenario runs on a virtual clock, so it finishes instantly and
the timeline is the same on every run. With --realtime the master follows the
wall clock. With --db the trace is also written to a SQLite database under a
fresh session id, for later use with "trace" and "verify".

Example:
  clocktree run ./scenarios/basic_pulse.yaml
  clocktree run --db ./clocks.db --realtime ./scenarios/tempo_ramp.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace into this SQLite database")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "follow the wall clock instead of a virtual one")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	logger.Debug("scenario loaded", "name", scenario.Name, "path", path)

	runOpts := []harness.RunOption{harness.WithLogger(logger)}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		gen := opts.SessionGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		runOpts = append(runOpts, harness.WithStore(st), harness.WithSessionGenerator(gen))
		logger.Debug("recording trace", "db", opts.Database)
	}

	if opts.Realtime {
		runOpts = append(runOpts, harness.WithTimeSource(engine.NewRealTimeSource()))
	} else {
		runOpts = append(runOpts, harness.WithTimeSource(engine.NewVirtualTimeSource(0)))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping session", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario run failed", err)
	}

	return outputRun(opts, cmd, scenario, result)
}

func outputRun(opts *RunOptions, cmd *cobra.Command, scenario *harness.Scenario, result *harness.Result) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	summary := RunSummary{
		Scenario:   scenario.Name,
		Session:    result.Session,
		Pass:       result.Pass,
		Events:     len(result.Trace),
		MasterTime: result.MasterTime,
		Steps:      result.Steps,
		TraceHash:  result.TraceHash,
		States:     result.States,
		Errors:     result.Errors,
	}

	var lines []string
	for _, ev := range result.Trace {
		lines = append(lines, harness.TraceView(ev))
	}
	lines = append(lines, "",
		fmt.Sprintf("Scenario: %s", scenario.Name),
		fmt.Sprintf("Session: %s", result.Session),
		fmt.Sprintf("Events: %d  Steps: %d  Master time: %g", len(result.Trace), result.Steps, result.MasterTime),
		fmt.Sprintf("Trace hash: %s", result.TraceHash))
	for _, e := range result.Errors {
		lines = append(lines, "  "+e)
	}

	var failed *CLIError
	if !result.Pass {
		failed = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("%d error(s)", len(result.Errors)),
		}
	}
	if err := formatter.Emit(result.Session, summary, lines, failed); err != nil {
		return err
	}

	if failed != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}
