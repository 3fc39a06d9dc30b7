package ir

// Version constants for the sealed world format and the engine.
const (
	// FormatVersion is the sealed world schema version.
	FormatVersion = "1"

	// EngineVersion is the sealbench engine version.
	EngineVersion = "0.3.0"
)
