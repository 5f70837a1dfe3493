package types

// Version is the canonical project version.
// The CLI, the trace document format and the completion event payload
// share this version.
const Version = "0.3.0"

// TraceFormatVersion is the version stamped into persisted trace documents.
const TraceFormatVersion = Version
