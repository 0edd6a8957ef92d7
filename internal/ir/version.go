package ir

// Version constants for the document schema and the wire format.
const (
	// SchemaVersion is the document schema version stamped into meta.
	SchemaVersion = 1

	// WireVersion is the update blob format version.
	WireVersion = 1

	// RefVersion is the persistent reference token version.
	RefVersion = 1
)
