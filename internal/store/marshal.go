package store

import (
	"fmt"

	"github.com/roach88/clocktree/internal/ir"
)

// marshalEvent converts an event to its canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON; positions are rendered by ir.Decimal so the
// payload never depends on float formatting.
func marshalEvent(ev ir.Event) (string, error) {
	data, err := ir.MarshalCanonical(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}
