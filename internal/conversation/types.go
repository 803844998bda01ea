// ABOUTME: Conversation, Message and StreamingBuffer types for the local conversation model
// ABOUTME: Also defines temporary-id helpers and the identity promotion record

package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks conversation ids minted locally before the server assigns one.
const TempIDPrefix = "local-"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered transcript under a (possibly temporary) id.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a deep copy so callers can't mutate store state.
func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// ToolStatus is the ephemeral "assistant is using a tool" indicator.
type ToolStatus struct {
	Status  string `json:"status"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// StreamingBuffer holds the assistant reply while it is being streamed.
type StreamingBuffer struct {
	Text       string
	ToolStatus *ToolStatus
	Active     bool
}

// Promotion records one identity transition of a conversation.
type Promotion struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// NewTempID returns a fresh temporary conversation id.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTemporary reports whether id was minted locally.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
