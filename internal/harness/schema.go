package harness

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// SchemaError reports a scenario document that does not unify with the
// scenario schema.
type SchemaError struct {
	Path    string
	Message string
	Count   int // total number of schema violations
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	if e.Count > 1 {
		return fmt.Sprintf("schema: %s (and %d more)", msg, e.Count-1)
	}
	return "schema: " + msg
}

// ValidateDocument unifies a decoded scenario document with the embedded
// CUE schema. doc is the YAML as decoded into generic maps and slices.
//
// A cue.Context is not safe for concurrent use, so each call builds its
// own.
func ValidateDocument(doc map[string]any) error {
	if doc == nil {
		return &SchemaError{Message: "empty scenario document", Count: 1}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode scenario document: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(err)
	}
	return nil
}

// formatSchemaError keeps the first CUE error with its path.
func formatSchemaError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error(), Count: 1}
	}
	first := errs[0]
	format, args := first.Msg()
	return &SchemaError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
		Count:   len(errs),
	}
}
