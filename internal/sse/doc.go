// Package sse implements the client side of the compose server's event streams.
//
// # Wire Format
//
// Streams use the text/event-stream format:
//
//	event: message
//	data: {"content":"Sure, "}
//
//	event: done
//	data: {"status":"ok","conversation_id":"abc"}
//
// Decoder buffers partial reads and only yields an event after its blank-line
// terminator. Events whose data is not valid JSON are reported as
// ErrMalformedEvent; Run drops them and keeps reading.
//
// # Ownership
//
// Transport enforces at most one open stream per owner. Open returns a
// *Stream handle; opening again cancels the previous stream and any callback
// that still arrives for the old handle is discarded. Close is idempotent.
package sse
