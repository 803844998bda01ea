// Package conversation holds the local model of chat conversations.
//
// # Overview
//
// Store keeps every conversation the session has seen, keyed by id, plus the
// id of the active one and the buffer of the assistant reply currently being
// streamed. It is the reconciliation point for the chat event stream:
//
//   - AddUserMessage: optimistic append, creating a "local-<uuid>" conversation if needed
//   - StartStreaming / AppendStreamingContent: accumulate token chunks
//   - SetConversationID: promote the active conversation to the server's id
//   - CompleteStreaming: promote if needed, then persist the reply if non-empty
//   - StreamingError / DiscardStreaming: drop partial output
//
// # Identity Promotion
//
// A conversation starts under a temporary id and is renamed once the server
// reports its own. All renames go through Promote, which moves the
// transcript in one step and appends a Promotion to a log. The log can be
// replayed onto another Store with ReplayPromotions.
//
// # Change Notifications
//
// A Broadcaster fans out Change hints to render subscribers. Publishing
// never blocks; a subscriber that falls behind misses hints and re-reads
// the model on the next one.
package conversation
