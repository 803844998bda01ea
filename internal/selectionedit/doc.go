// Package selectionedit rewrites a span of the Document through a dedicated
// streaming exchange.
//
// # Protocol
//
// The request carries the full content, the selected text, the instruction
// and the selection offsets (in runes). The server answers with edit_chunk
// events, then edit_complete or done; an error event aborts.
//
// # Animation
//
// The captured selection is deleted one rune at a time, paced by a rate
// limiter, against the original surrounding text. Chunks arriving in the
// meantime are buffered. Only after deletion finishes are chunks appended at
// the selection start, so the replacement grows in place. The final
// selection is [start, start+len(replacement)).
//
// # Failure
//
// On an error or cancellation the Document is restored to the content
// captured at Start, unless another writer touched it after the edit's last
// write; in that case the other writer's content is kept. Errors are raised
// as notifications.
//
// An Editor runs one edit at a time. Starting a new one cancels the running
// edit and waits for its goroutines and timers to stop.
package selectionedit
