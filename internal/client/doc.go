// Package client is the HTTP client of the compose server.
//
// # Endpoints
//
//   - Chat stream: POST {base}{chat_stream_path}, body ChatRequest
//   - Selection edit stream: POST {base}{edit_stream_path}, body selectionedit.Request
//   - Draft save: PUT {base}{draft_path}, multipart (content, files, existing_images)
//   - History: GET {base}{history_path}, 404 means no history yet
//
// Paths may contain {id}, replaced with the escaped post or conversation id.
// Streams are not opened here: ChatStreamRequest returns an sse.Request for
// an sse.Transport, while StreamEdit runs sse.Run directly so the client can
// serve as a selectionedit.Streamer.
//
// # Authentication
//
// Every request carries Authorization: Bearer <token> when the token source
// yields one.
package client
