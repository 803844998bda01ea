// Package tools applies the side effects of assistant tool calls.
//
// The chat stream reports tool invocations as tool_call events. A
// Dispatcher looks up the handler registered for the tool name and runs it
// only when the server reported success. Unknown tools are skipped.
//
// The only built-in handler is edit_content, which replaces the Document
// with the tool's output and adopts its content_id as the post id.
package tools
