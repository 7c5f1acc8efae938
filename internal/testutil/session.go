package testutil

// FixedSessionGenerator generates the same session id every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// event ids are derived from the session id, so the same scenario with the
// same FixedSessionGenerator produces byte-identical traces.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this generator
// never runs out, which suits a scenario that is run repeatedly.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a new fixed session id generator.
//
// The id is typically set in the scenario YAML:
//
//	session: "test-session-0001"
//
// If id is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id.
//
// Implements engine.SessionGenerator interface.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
