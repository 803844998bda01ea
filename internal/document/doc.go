// Package document models the post being co-authored.
//
// Three actors write to a Document: the user typing, the assistant's
// edit_content tool call, and the selection-edit animation. Writes are
// last-writer-wins. Each one bumps Version and is recorded in the write
// log; a tool replace that discards unsaved local edits is flagged as
// Clobbered. SetIfVersion provides read-check-write for callers that must
// not overwrite a newer write.
package document
