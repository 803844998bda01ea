// Package session is the orchestrator for one open Document and its chat.
//
// # Overview
//
// A Session owns the conversation model, the tool dispatcher, the SSE
// transport for the chat stream, the draft autosave machine, the selection
// editor and the duplicate-send guard, and routes events between them:
//
//	Send ──► conversation.Store.AddUserMessage ──► sse.Transport.Open
//	                                                    │
//	      conversation ─► SetConversationID (+ cache rename, promotion log)
//	      message ──────► AppendStreamingContent
//	      tool_status ──► SetToolStatus
//	      tool_call ────► tools.Dispatcher ─► Document.ReplaceFromTool
//	      research_cards► live timeline batch
//	      done ─────────► CompleteStreaming (+ cache write)
//	      error ────────► StreamingError + notification
//
// A stream that ends without done or error is reported as failed. A failed
// or cancelled send releases its duplicate-guard entry so the user can
// resend immediately.
//
// # Local Cache
//
// When a store.Store is configured, completed conversations, their research
// cards and every identity promotion are written to it. Load prefers the
// server's history and falls back to the cache, following the promotion log
// so an old temporary id still finds its conversation.
package session
