// ABOUTME: Builds chat and selection-edit stream requests for the SSE transport
// ABOUTME: StreamEdit runs a selection-edit stream to completion on the caller's goroutine

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/coven-compose/internal/selectionedit"
	"github.com/2389/coven-compose/internal/sse"
)

// ChatContext tells the assistant which post the chat is about.
type ChatContext struct {
	PostID   string `json:"post_id,omitempty"`
	Content  string `json:"content,omitempty"`
	EditMode bool   `json:"edit_mode,omitempty"`
}

// ChatRequest is the body of a chat stream request.
type ChatRequest struct {
	Message        string       `json:"message"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Tools          []string     `json:"tools,omitempty"`
	Context        *ChatContext `json:"context,omitempty"`
}

// ChatStreamRequest builds the request that opens a chat stream.
func (c *Client) ChatStreamRequest(req ChatRequest) (sse.Request, error) {
	return c.streamRequest(c.paths.ChatStreamPath, req)
}

// EditStreamRequest builds the request that opens a selection-edit stream.
func (c *Client) EditStreamRequest(req selectionedit.Request) (sse.Request, error) {
	return c.streamRequest(c.paths.EditStreamPath, req)
}

// StreamEdit implements selectionedit.Streamer.
func (c *Client) StreamEdit(ctx context.Context, req selectionedit.Request, h sse.Handlers) error {
	r, err := c.EditStreamRequest(req)
	if err != nil {
		return err
	}
	return sse.Run(ctx, c.http, r, h, c.logger)
}

func (c *Client) streamRequest(path string, body any) (sse.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return sse.Request{}, fmt.Errorf("encoding request: %w", err)
	}
	header, err := c.header()
	if err != nil {
		return sse.Request{}, err
	}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/event-stream")

	return sse.Request{
		URL:    c.endpoint(path, ""),
		Method: http.MethodPost,
		Header: header,
		Body:   data,
	}, nil
}

var _ selectionedit.Streamer = (*Client)(nil)
