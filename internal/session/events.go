// ABOUTME: Applies chat stream events to the session's models
// ABOUTME: A stream that closes without done or error is treated as failed

package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/notify"
	"github.com/2389/coven-compose/internal/sse"
	"github.com/2389/coven-compose/internal/store"
	"github.com/2389/coven-compose/internal/timeline"
	"github.com/2389/coven-compose/internal/tools"
)

// Event types of the chat stream.
const (
	EventConversation  = "conversation"
	EventMessage       = "message"
	EventToolStatus    = "tool_status"
	EventToolCall      = "tool_call"
	EventResearchCards = "research_cards"
	EventDone          = "done"
	EventError         = "error"
)

// errStreamClosed reports a stream that ended without done.
var errStreamClosed = errors.New("stream closed before the reply completed")

type conversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type messagePayload struct {
	Content string `json:"content"`
}

type researchCardsPayload struct {
	Cards []timeline.Card `json:"cards"`
	Query string          `json:"query"`
	Mode  string          `json:"mode"`
}

type donePayload struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// chatStream holds the per-stream state. Its callbacks all run on the
// stream's goroutine.
type chatStream struct {
	session  *Session
	// parent is the caller's context; its cancellation ends the stream quietly.
	parent   context.Context
	ctx      context.Context
	key      string
	finished bool
}

func (cs *chatStream) handlers() sse.Handlers {
	return sse.Handlers{
		OnEvent: cs.onEvent,
		OnError: func(err error) { cs.fail(err.Error()) },
		OnClose: func() {
			if cs.finished {
				return
			}
			if cs.parent.Err() != nil {
				cs.discard()
				return
			}
			cs.fail(errStreamClosed.Error())
		},
	}
}

func (cs *chatStream) onEvent(eventType string, payload json.RawMessage) {
	s := cs.session

	switch eventType {
	case EventConversation:
		var p conversationPayload
		if decode(s, eventType, payload, &p) {
			cs.promote(p.ConversationID)
		}

	case EventMessage:
		var p messagePayload
		if decode(s, eventType, payload, &p) && p.Content != "" {
			s.conversations.AppendStreamingContent(p.Content)
		}

	case EventToolStatus:
		var p tools.Status
		if decode(s, eventType, payload, &p) {
			s.conversations.SetToolStatus(&conversation.ToolStatus{Status: p.Status, Tool: p.Tool, Message: p.Message})
		}

	case EventToolCall:
		applied, err := s.dispatcher.Dispatch(payload)
		if err != nil {
			s.logger.Debug("dropping tool call", "error", err)
			return
		}
		if applied {
			s.logger.Info("tool call applied", "post_id", s.doc.ID())
		}

	case EventResearchCards:
		var p researchCardsPayload
		if decode(s, eventType, payload, &p) {
			cs.addCards(p)
		}

	case EventDone:
		var p donePayload
		decode(s, eventType, payload, &p)
		cs.complete(p)

	case EventError:
		var p errorPayload
		decode(s, eventType, payload, &p)
		if p.Error == "" {
			p.Error = "the assistant reported an error"
		}
		cs.fail(p.Error)

	default:
		s.logger.Debug("ignoring unknown event", "type", eventType)
	}
}

// promote moves the active conversation to the server's id and mirrors the
// rename in the cache.
func (cs *chatStream) promote(id string) {
	s := cs.session
	if id == "" {
		return
	}

	before := len(s.conversations.Promotions())
	s.conversations.SetConversationID(id)
	promotions := s.conversations.Promotions()[before:]

	s.mu.Lock()
	for i := range s.batches {
		s.batches[i].ConversationID = id
	}
	if s.live != nil {
		s.live.ConversationID = id
	}
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	for _, p := range promotions {
		if err := s.cache.RenameConversation(cs.ctx, p.From, p.To); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("renaming cached conversation failed", "from", p.From, "to", p.To, "error", err)
		}
		if err := s.cache.RecordPromotion(cs.ctx, p); err != nil {
			s.logger.Warn("recording promotion failed", "from", p.From, "to", p.To, "error", err)
		}
	}
}

func (cs *chatStream) addCards(p researchCardsPayload) {
	s := cs.session
	batch := timeline.Batch{
		ID:             uuid.New().String(),
		ConversationID: s.conversations.ActiveID(),
		Cards:          p.Cards,
		Query:          p.Query,
		Mode:           p.Mode,
		CreatedAt:      s.now().UTC(),
	}

	s.mu.Lock()
	if s.live != nil {
		s.batches = append(s.batches, *s.live)
	}
	s.live = &batch
	s.mu.Unlock()

	s.broadcaster.Publish(conversation.Change{Kind: conversation.ChangeCards, ConversationID: batch.ConversationID})
	s.logger.Debug("research cards received", "batch_id", batch.ID, "cards", len(batch.Cards), "query", batch.Query)
}

func (cs *chatStream) complete(p donePayload) {
	s := cs.session
	cs.finished = true

	cs.promote(p.ConversationID)
	msg := s.conversations.CompleteStreaming(p.ConversationID)

	s.mu.Lock()
	if s.sendKey == cs.key {
		s.sendKey = ""
	}
	batches := append([]timeline.Batch(nil), s.batches...)
	if s.live != nil {
		batches = append(batches, *s.live)
	}
	s.mu.Unlock()

	s.cacheConversation(cs.ctx, s.conversations.Active(), batches)

	attrs := []any{"conversation_id", s.conversations.ActiveID(), "status", p.Status}
	if msg != nil {
		attrs = append(attrs, "message_id", msg.ID)
	}
	s.logger.Info("chat stream completed", attrs...)
}

func (cs *chatStream) fail(message string) {
	s := cs.session
	if cs.finished {
		return
	}
	cs.finished = true

	s.conversations.StreamingError(message)

	s.mu.Lock()
	if s.sendKey == cs.key {
		s.sendKey = ""
	}
	s.mu.Unlock()
	s.guard.Release(cs.key)

	s.logger.Warn("chat stream failed", "error", message)
	s.notifier.Notify(notify.Notification{Level: notify.LevelError, Title: "Message failed", Message: message})
}

// discard drops the partial reply of a stream cancelled by its caller.
func (cs *chatStream) discard() {
	s := cs.session
	cs.finished = true

	s.conversations.DiscardStreaming()

	s.mu.Lock()
	if s.sendKey == cs.key {
		s.sendKey = ""
	}
	s.mu.Unlock()
	s.guard.Release(cs.key)

	s.logger.Info("chat stream cancelled", "conversation_id", s.conversations.ActiveID())
}

// decode unmarshals payload, logging and reporting false when it doesn't fit.
func decode(s *Session, eventType string, payload json.RawMessage, v any) bool {
	if len(payload) == 0 {
		return true
	}
	if err := json.Unmarshal(payload, v); err != nil {
		s.logger.Debug("dropping malformed event", "type", eventType, "error", err)
		return false
	}
	return true
}
