// Package audit dispatches session lifecycle events asynchronously.
//
// # Components
//
//   - [Sink]: event consumer interface (channel, JSON lines, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: timestamped record of one restore, login, register or logout outcome.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events to emit is decided
// by the session manager.
//
// # What this package must NOT do
//
//   - Record tokens, passwords or full user records.
//   - Import authsession or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
