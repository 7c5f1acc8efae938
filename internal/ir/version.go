package ir

// Version constants for the trace schema and engine.
const (
	// TraceVersion is the trace record schema version.
	TraceVersion = "1"

	// EngineVersion is the clocktree engine version.
	EngineVersion = "0.1.0"
)
