// Package audit implements async event dispatching for authentication outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, username, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine and flow functions do.
//
// Sinks must never receive secrets: events carry usernames and outcome codes,
// not passwords, emails, session ids or reset tokens.
package audit
