package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/clocktree/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Check scenario files against the scenario schema.

Each file is decoded strictly, unified with the CUE schema, and its voices
and assertions are cross-checked. Nothing is executed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	failed := 0
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		fv := FileValidation{Path: path, Valid: true}
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
			failed++
		} else {
			fv.Name = scenario.Name
		}
		result.Files = append(result.Files, fv)
	}

	var lines []string
	for _, fv := range result.Files {
		if fv.Valid {
			lines = append(lines, fmt.Sprintf("✓ %s (%s)", fv.Path, fv.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("✗ %s", fv.Path), "  "+fv.Error)
	}

	var cliErr *CLIError
	if failed > 0 {
		cliErr = &CLIError{
			Code:    "E_INVALID_SCENARIO",
			Message: fmt.Sprintf("%d of %d scenario(s) invalid", failed, len(paths)),
		}
	} else {
		lines = append(lines, "✓ All scenarios valid")
	}
	if err := formatter.Emit("", result, lines, cliErr); err != nil {
		return err
	}

	if cliErr != nil {
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", failed))
	}
	return nil
}
