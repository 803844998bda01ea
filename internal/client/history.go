// ABOUTME: Conversation history retrieval for resuming a conversation
// ABOUTME: A 404 means no history yet and is not an error

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/timeline"
)

// History is the server's record of one conversation.
type History struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message    `json:"messages"`
	// ResearchCards is nil when the server sent null.
	ResearchCards []timeline.Batch `json:"research_cards"`
}

// ToConversation combines the header and the messages.
func (h *History) ToConversation() *conversation.Conversation {
	conv := h.Conversation
	conv.Messages = append([]conversation.Message(nil), h.Messages...)
	return &conv
}

// GetHistory fetches the history of conversation id. It returns nil, nil
// when the server has none.
func (c *Client) GetHistory(ctx context.Context, id string) (*History, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.paths.HistoryPath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	header, err := c.header()
	if err != nil {
		return nil, err
	}
	req.Header = header
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("no history yet", "conversation_id", id)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var h History
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if h.Conversation.ID == "" {
		h.Conversation.ID = id
	}
	for i := range h.ResearchCards {
		if h.ResearchCards[i].ConversationID == "" {
			h.ResearchCards[i].ConversationID = h.Conversation.ID
		}
	}
	return &h, nil
}
