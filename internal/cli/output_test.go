package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_EmitText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Emit("s1", nil, []string{"line one", "line two"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", buf.String())

	buf.Reset()
	err = formatter.Emit("s1", nil, []string{"summary"}, &CLIError{Code: "E_TEST_FAILED", Message: "1 scenario(s) failed"})
	require.NoError(t, err)
	assert.Equal(t, "summary\nError [E_TEST_FAILED]: 1 scenario(s) failed\n", buf.String())
}

func TestOutputFormatter_EmitTextDetails(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			failed := &CLIError{Code: "E_TRACE_BROKEN", Message: "broken", Details: []int64{3}}
			require.NoError(t, formatter.Emit("", nil, nil, failed))

			assert.Contains(t, buf.String(), "Error [E_TRACE_BROKEN]")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: [3]")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_EmitJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Emit("s1", map[string]int{"events": 7}, []string{"ignored"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "ignored")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "s1", resp.Session)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_EmitJSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Emit("", nil, nil, &CLIError{Code: "E_INVALID_SCENARIO", Message: "1 of 1 scenario(s) invalid"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_INVALID_SCENARIO", resp.Error.Code)
	assert.Empty(t, resp.Session)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("Validating %s", "pulse.yaml")
	assert.Empty(t, out.String())
	assert.Equal(t, "Validating pulse.yaml\n", diag.String())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitFailure, "scenario run failed", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "scenario run failed: ")
	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())
}
