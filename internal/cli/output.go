package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failure (assertions failed, trace broken, etc.)
	ExitCommandError = 2 // Command error (invalid paths, unreadable scenario, etc.)
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every command writes in JSON mode.
type CLIResponse struct {
	Status  string      `json:"status"` // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`
	Error   *CLIError   `json:"error,omitempty"`
	Session string      `json:"session,omitempty"` // session the output refers to
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"` // "E_TEST_FAILED", "E_TRACE_BROKEN", ...
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// OutputFormatter writes command output as text lines or a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// Emit writes one command's output. In text mode lines are printed as
// they are, followed by failed if set; in JSON mode data becomes the
// payload of a CLIResponse whose status reflects failed.
func (f *OutputFormatter) Emit(session string, data interface{}, lines []string, failed *CLIError) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: data, Session: session}
		if failed != nil {
			resp.Status = "error"
			resp.Error = failed
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	for _, line := range lines {
		fmt.Fprintln(f.Writer, line)
	}
	if failed != nil {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", failed.Code, failed.Message)
		if f.Verbose && failed.Details != nil {
			fmt.Fprintf(f.Writer, "Details: %v\n", failed.Details)
		}
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose mode is on. It goes to
// ErrWriter when set so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
