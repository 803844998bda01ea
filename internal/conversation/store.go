// ABOUTME: In-memory conversation model: transcripts, active id, streaming buffer, identity promotion
// ABOUTME: Identity transitions go through Promote and are recorded in a replayable log

package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxTitleLength bounds titles derived from the first user message.
const maxTitleLength = 60

// Store is the authoritative local model of all conversations. At most one
// conversation is active; once promotion completes the active id always
// resolves to an entry.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	activeID      string
	buffer        StreamingBuffer
	lastError     string
	promotions    []Promotion

	broadcaster *Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: make(map[string]*Conversation),
		logger:        logger.With("component", "conversation"),
		now:           time.Now,
	}
}

// SetBroadcaster configures where change notifications are published.
func (s *Store) SetBroadcaster(b *Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// AddUserMessage appends an optimistic user message to the active
// conversation, creating one under a temporary id if none is active.
func (s *Store) AddUserMessage(content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.ensureActiveLocked()
	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: s.nextTimestampLocked(conv),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	if conv.Title == "" {
		conv.Title = deriveTitle(content)
	}

	s.logger.Debug("user message added", "conversation_id", conv.ID, "message_id", msg.ID)
	s.publishLocked(ChangeMessages, conv.ID)
	return msg
}

// StartStreaming resets the buffer and marks it active. It returns false and
// changes nothing if a stream is already active.
func (s *Store) StartStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer.Active {
		s.logger.Debug("start streaming ignored, already streaming")
		return false
	}
	s.buffer = StreamingBuffer{Active: true}
	s.lastError = ""
	s.publishLocked(ChangeStreaming, s.activeID)
	return true
}

// IsStreaming reports whether a stream is active.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Active
}

// SetConversationID promotes the active conversation to newID. Calling it
// again with the same id is a no-op.
func (s *Store) SetConversationID(newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConversationIDLocked(newID)
}

func (s *Store) setConversationIDLocked(newID string) {
	if newID == "" || s.activeID == newID {
		return
	}

	if s.activeID == "" {
		// Nothing local to migrate; adopt the server's conversation
		if _, ok := s.conversations[newID]; !ok {
			now := s.now()
			s.conversations[newID] = &Conversation{ID: newID, CreatedAt: now, UpdatedAt: now}
		}
		s.activeID = newID
		s.publishLocked(ChangeActive, newID)
		return
	}

	s.promoteLocked(s.activeID, newID)
}

// Promote renames the conversation oldID to newID, moving all of its
// messages. An existing entry under newID is overwritten. It returns false
// if oldID is unknown or the ids are equal.
func (s *Store) Promote(oldID, newID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promoteLocked(oldID, newID)
}

func (s *Store) promoteLocked(oldID, newID string) bool {
	if oldID == newID || newID == "" {
		return false
	}
	conv, ok := s.conversations[oldID]
	if !ok {
		return false
	}

	if existing, clash := s.conversations[newID]; clash {
		s.logger.Warn("promotion overwrites existing conversation",
			"from", oldID,
			"to", newID,
			"dropped_messages", len(existing.Messages))
	}

	delete(s.conversations, oldID)
	conv.ID = newID
	s.conversations[newID] = conv
	if s.activeID == oldID {
		s.activeID = newID
	}

	p := Promotion{From: oldID, To: newID, At: s.now()}
	s.promotions = append(s.promotions, p)

	s.logger.Debug("conversation promoted", "from", oldID, "to", newID, "messages", len(conv.Messages))
	s.publishLocked(ChangePromoted, newID)
	return true
}

// Promotions returns the identity transitions applied so far, oldest first.
func (s *Store) Promotions() []Promotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Promotion(nil), s.promotions...)
}

// ReplayPromotions applies a promotion log recorded elsewhere. Entries whose
// source id is unknown are skipped. It returns the number applied.
func (s *Store) ReplayPromotions(log []Promotion) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, p := range log {
		if s.promoteLocked(p.From, p.To) {
			applied++
		}
	}
	return applied
}

// AppendStreamingContent adds a token chunk to the streaming buffer.
func (s *Store) AppendStreamingContent(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.buffer.Active {
		s.logger.Debug("chunk ignored, not streaming", "bytes", len(chunk))
		return
	}
	s.buffer.Text += chunk
	s.publishLocked(ChangeStreaming, s.activeID)
}

// SetToolStatus records the transient tool indicator of the current stream.
func (s *Store) SetToolStatus(status *ToolStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.buffer.Active {
		return
	}
	s.buffer.ToolStatus = status
	s.publishLocked(ChangeStreaming, s.activeID)
}

// CompleteStreaming promotes to finalID when given, then materializes the
// buffered text as an assistant message if it is non-empty. The buffer is
// cleared either way. It returns the new message, or nil.
func (s *Store) CompleteStreaming(finalID string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setConversationIDLocked(finalID)

	text := s.buffer.Text
	s.buffer = StreamingBuffer{}

	if text == "" {
		s.logger.Debug("stream completed without content", "conversation_id", s.activeID)
		s.publishLocked(ChangeStreaming, s.activeID)
		return nil
	}

	conv := s.ensureActiveLocked()
	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: s.nextTimestampLocked(conv),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp

	s.logger.Debug("assistant message materialized",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"bytes", len(text))
	s.publishLocked(ChangeMessages, conv.ID)
	return &msg
}

// StreamingError clears the buffer without keeping partial output and
// records a user-visible error.
func (s *Store) StreamingError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("stream failed, discarding partial output",
		"conversation_id", s.activeID,
		"discarded_bytes", len(s.buffer.Text),
		"error", message)
	s.buffer = StreamingBuffer{}
	s.lastError = message
	s.publishLocked(ChangeError, s.activeID)
}

// DiscardStreaming drops the buffer after a cancellation.
func (s *Store) DiscardStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.buffer.Active && s.buffer.Text == "" {
		return
	}
	s.buffer = StreamingBuffer{}
	s.publishLocked(ChangeStreaming, s.activeID)
}

// Buffer returns a copy of the streaming buffer.
func (s *Store) Buffer() StreamingBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buffer
	if b.ToolStatus != nil {
		ts := *b.ToolStatus
		b.ToolStatus = &ts
	}
	return b
}

// LastError returns the most recent stream error message.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ActiveID returns the active conversation id, or "" if none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active conversation, or nil.
func (s *Store) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[s.activeID]
	if !ok {
		return nil
	}
	return conv.clone()
}

// Get returns a copy of the conversation with the given id, or nil.
func (s *Store) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	return conv.clone()
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Load inserts (or replaces) a conversation fetched from history and
// optionally makes it active.
func (s *Store) Load(conv *Conversation, activate bool) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv.clone()
	if activate {
		s.activeID = conv.ID
	}
	s.publishLocked(ChangeActive, conv.ID)
	return nil
}

// NewConversation clears the active id so the next user message starts a
// fresh conversation. Existing entries are kept.
func (s *Store) NewConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = ""
	s.buffer = StreamingBuffer{}
	s.lastError = ""
	s.publishLocked(ChangeActive, "")
}

// ensureActiveLocked returns the active conversation, creating a temporary one if needed.
func (s *Store) ensureActiveLocked() *Conversation {
	if conv, ok := s.conversations[s.activeID]; ok {
		return conv
	}

	now := s.now()
	conv := &Conversation{ID: NewTempID(), CreatedAt: now, UpdatedAt: now}
	s.conversations[conv.ID] = conv
	s.activeID = conv.ID
	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return conv
}

// nextTimestampLocked keeps message timestamps non-decreasing within a conversation.
func (s *Store) nextTimestampLocked(conv *Conversation) time.Time {
	ts := s.now().UTC()
	if n := len(conv.Messages); n > 0 && ts.Before(conv.Messages[n-1].Timestamp) {
		ts = conv.Messages[n-1].Timestamp
	}
	return ts
}

func (s *Store) publishLocked(kind ChangeKind, conversationID string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(Change{Kind: kind, ConversationID: conversationID})
}

// deriveTitle shortens the first user message into a conversation title.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleLength {
		return content
	}
	return string(runes[:maxTitleLength-3]) + "..."
}
