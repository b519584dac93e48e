// Package log provides structured protocol event logging.
//
// Components accept a Logger and emit an Event for every frame sent or
// received, every state transition, every retry, and every protocol
// warning or error. Events are plain values; what happens to them is up
// to the Logger implementation:
//
//   - NoopLogger discards everything (the default)
//   - SlogAdapter prints events through a standard slog.Logger
//   - FileLogger appends CBOR-encoded events to a trace file
//   - MultiLogger fans out to several of the above
//
// Trace files written by FileLogger are read back with Reader, which
// supports filtering by connection, direction, layer, category, bridge,
// and time range. The milight-log command builds on Reader.
//
// Events use CBOR integer keys so traces of long-running sessions stay
// compact.
package log
