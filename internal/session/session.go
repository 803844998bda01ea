// ABOUTME: Session wires the chat stream, conversation model, tools, draft autosave and selection edits for one Document
// ABOUTME: Stream events are applied in arrival order on the stream goroutine; the local cache is updated as they land

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-compose/internal/autosave"
	"github.com/2389/coven-compose/internal/client"
	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/dedupe"
	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/notify"
	"github.com/2389/coven-compose/internal/preview"
	"github.com/2389/coven-compose/internal/selectionedit"
	"github.com/2389/coven-compose/internal/sse"
	"github.com/2389/coven-compose/internal/store"
	"github.com/2389/coven-compose/internal/timeline"
	"github.com/2389/coven-compose/internal/tools"
)

// dedupeMaxEntries bounds the duplicate-send guard.
const dedupeMaxEntries = 1024

var (
	// ErrStreamActive is returned by Send while a chat stream is running.
	ErrStreamActive = errors.New("a chat stream is already active")
	// ErrDuplicateSend is returned for a repeat of the last message inside the duplicate window.
	ErrDuplicateSend = errors.New("duplicate message")
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Options configures a Session.
type Options struct {
	Client *client.Client
	// Cache is optional; without it nothing survives the process.
	Cache    store.Store
	Notifier notify.Notifier
	// Tools advertised to the assistant. Defaults to every registered tool.
	Tools []string
	// EditMode tells the assistant the post is being revised rather than written.
	EditMode         bool
	DuplicateWindow  time.Duration
	DeleteInterval   time.Duration
	PreviewMaxLength int
	Logger           *slog.Logger
}

// Session is one open Document and its chat.
type Session struct {
	client   *client.Client
	cache    store.Store
	notifier notify.Notifier
	tools    []string
	editMode bool
	logger   *slog.Logger

	conversations *conversation.Store
	broadcaster   *conversation.Broadcaster
	doc           *document.Document
	dispatcher    *tools.Dispatcher
	transport     *sse.Transport
	autosave      *autosave.Machine
	editor        *selectionedit.Editor
	guard         *dedupe.Guard
	renderer      *preview.Renderer

	mu      sync.Mutex
	batches []timeline.Batch
	live    *timeline.Batch
	sendKey string
	// thread identifies the conversation for the duplicate guard. It
	// survives promotion, unlike the conversation id.
	thread string
	now    func() time.Time
}

// New creates a session around doc.
func New(doc *document.Document, opts Options) (*Session, error) {
	if doc == nil {
		return nil, fmt.Errorf("document required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("client required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	broadcaster := conversation.NewBroadcaster(logger)
	conversations := conversation.NewStore(logger)
	conversations.SetBroadcaster(broadcaster)

	dispatcher := tools.NewDispatcher(logger)
	if err := dispatcher.Register(tools.EditContentTool, tools.EditContentHandler(doc)); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	advertised := opts.Tools
	if len(advertised) == 0 {
		advertised = dispatcher.Tools()
	}

	s := &Session{
		client:        opts.Client,
		cache:         opts.Cache,
		notifier:      notifier,
		tools:         advertised,
		editMode:      opts.EditMode,
		logger:        logger.With("component", "session"),
		conversations: conversations,
		broadcaster:   broadcaster,
		doc:           doc,
		dispatcher:    dispatcher,
		transport:     sse.NewTransport(opts.Client.HTTPClient(), logger),
		autosave:      autosave.New(doc, opts.Client, notifier, logger),
		editor:        selectionedit.NewEditor(doc, opts.Client, notifier, opts.DeleteInterval, logger),
		guard:         dedupe.New(opts.DuplicateWindow, dedupeMaxEntries),
		renderer:      preview.NewRenderer(opts.PreviewMaxLength),
		thread:        uuid.New().String(),
		now:           time.Now,
	}

	doc.OnChange(func(document.Change) {
		broadcaster.Publish(conversation.Change{Kind: conversation.ChangeDocument, ConversationID: conversations.ActiveID()})
	})

	return s, nil
}

// Conversations returns the conversation model.
func (s *Session) Conversations() *conversation.Store { return s.conversations }

// Document returns the open Document.
func (s *Session) Document() *document.Document { return s.doc }

// Autosave returns the draft autosave machine.
func (s *Session) Autosave() *autosave.Machine { return s.autosave }

// Subscribe returns a channel of change hints for rendering.
func (s *Session) Subscribe(ctx context.Context) <-chan conversation.Change {
	ch, _ := s.broadcaster.Subscribe(ctx)
	return ch
}

// Send appends text to the active conversation and opens a chat stream for
// it. The returned handle's Done channel closes once every event has been
// applied.
func (s *Session) Send(ctx context.Context, text string) (*sse.Stream, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	activeID := s.conversations.ActiveID()
	s.mu.Lock()
	key := dedupe.Key(s.thread, text)
	s.mu.Unlock()
	if !s.guard.Admit(key) {
		s.logger.Debug("duplicate send rejected", "conversation_id", activeID)
		return nil, ErrDuplicateSend
	}

	chatReq := client.ChatRequest{
		Message: text,
		Tools:   s.tools,
		Context: &client.ChatContext{
			PostID:   s.doc.ID(),
			Content:  s.doc.Content(),
			EditMode: s.editMode,
		},
	}
	// The server only knows ids it assigned
	if activeID != "" && !conversation.IsTemporary(activeID) {
		chatReq.ConversationID = activeID
	}

	req, err := s.client.ChatStreamRequest(chatReq)
	if err != nil {
		s.guard.Release(key)
		return nil, fmt.Errorf("building chat request: %w", err)
	}

	// Claim the buffer before the optimistic message so a lost race leaves no trace
	if !s.conversations.StartStreaming() {
		s.guard.Release(key)
		return nil, ErrStreamActive
	}
	s.conversations.AddUserMessage(text)

	s.mu.Lock()
	if s.live != nil {
		s.batches = append(s.batches, *s.live)
		s.live = nil
	}
	s.sendKey = key
	s.mu.Unlock()

	cs := &chatStream{session: s, parent: ctx, ctx: context.WithoutCancel(ctx), key: key}
	stream := s.transport.Open(ctx, req, cs.handlers())
	s.logger.Info("chat stream opened", "stream", stream.ID(), "conversation_id", chatReq.ConversationID)
	return stream, nil
}

// Cancel closes the chat stream, if any, and discards the partial reply.
func (s *Session) Cancel() {
	s.transport.Close()
	s.conversations.DiscardStreaming()

	s.mu.Lock()
	key := s.sendKey
	s.sendKey = ""
	s.mu.Unlock()
	if key != "" {
		s.guard.Release(key)
	}
}

// NewConversation cancels any stream and starts over with no active conversation.
func (s *Session) NewConversation() {
	s.Cancel()
	s.conversations.NewConversation()

	s.mu.Lock()
	s.batches = nil
	s.live = nil
	s.thread = uuid.New().String()
	s.mu.Unlock()
}

// Load makes the conversation id active, from the server when it has a
// history and from the local cache otherwise. A conversation nobody knows
// yet is activated empty.
func (s *Session) Load(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("conversation id required")
	}
	s.Cancel()

	id = s.resolveID(ctx, id)

	h, err := s.client.GetHistory(ctx, id)
	if err == nil && h != nil {
		conv := h.ToConversation()
		if err := s.conversations.Load(conv, true); err != nil {
			return err
		}
		s.setBatches(h.ResearchCards)
		s.cacheConversation(ctx, conv, h.ResearchCards)
		s.logger.Info("conversation loaded", "conversation_id", conv.ID, "messages", len(conv.Messages), "source", "server")
		return nil
	}
	if err != nil {
		s.logger.Warn("history fetch failed, trying cache", "conversation_id", id, "error", err)
	}

	if conv, batches, ok := s.fromCache(ctx, id); ok {
		if err := s.conversations.Load(conv, true); err != nil {
			return err
		}
		s.setBatches(batches)
		s.logger.Info("conversation loaded", "conversation_id", conv.ID, "messages", len(conv.Messages), "source", "cache")
		return nil
	}

	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}

	now := s.now()
	s.setBatches(nil)
	return s.conversations.Load(&conversation.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}, true)
}

// Timeline returns the active conversation's messages and research cards in display order.
func (s *Session) Timeline() []timeline.Entry {
	var messages []conversation.Message
	if conv := s.conversations.Active(); conv != nil {
		messages = conv.Messages
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return timeline.Merge(messages, s.batches, s.live)
}

// Edit records a user edit of the whole Document.
func (s *Session) Edit(content string) uint64 {
	return s.doc.Edit(content)
}

// SaveDraft saves the Document now.
func (s *Session) SaveDraft(ctx context.Context) error {
	return s.autosave.Save(ctx)
}

// EditSelection starts an AI rewrite of runes [start, end) of the Document.
func (s *Session) EditSelection(ctx context.Context, start, end int, instruction string) (*selectionedit.Edit, error) {
	return s.editor.Start(ctx, start, end, instruction)
}

// Preview renders the current Document.
func (s *Session) Preview() (*preview.Preview, error) {
	return s.renderer.Render(s.doc.Content())
}

// Close stops every stream the session owns.
func (s *Session) Close() {
	s.Cancel()
	s.editor.Cancel()
	s.broadcaster.Close()
}

// setBatches replaces the timeline batches after a conversation switch.
func (s *Session) setBatches(batches []timeline.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append([]timeline.Batch(nil), batches...)
	s.live = nil
	s.thread = uuid.New().String()
}

// resolveID follows the cached promotion log so an old temporary id finds
// the conversation it became.
func (s *Session) resolveID(ctx context.Context, id string) string {
	if s.cache == nil {
		return id
	}
	log, err := s.cache.ListPromotions(ctx)
	if err != nil {
		s.logger.Warn("reading promotion log failed", "error", err)
		return id
	}
	for _, p := range log {
		if p.From == id {
			id = p.To
		}
	}
	return id
}

func (s *Session) fromCache(ctx context.Context, id string) (*conversation.Conversation, []timeline.Batch, bool) {
	if s.cache == nil {
		return nil, nil, false
	}
	conv, err := s.cache.GetConversation(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("reading cached conversation failed", "conversation_id", id, "error", err)
		}
		return nil, nil, false
	}
	batches, err := s.cache.ListCardBatches(ctx, id)
	if err != nil {
		s.logger.Warn("reading cached research cards failed", "conversation_id", id, "error", err)
	}
	return conv, batches, true
}

// cacheConversation writes a conversation and its batches to the cache.
// Batches without an id cannot be cached.
func (s *Session) cacheConversation(ctx context.Context, conv *conversation.Conversation, batches []timeline.Batch) {
	if s.cache == nil || conv == nil {
		return
	}
	if err := s.cache.SaveConversation(ctx, conv); err != nil {
		s.logger.Warn("caching conversation failed", "conversation_id", conv.ID, "error", err)
		return
	}
	for i := range batches {
		b := batches[i]
		if b.ID == "" {
			continue
		}
		b.ConversationID = conv.ID
		if err := s.cache.SaveCardBatch(ctx, &b); err != nil {
			s.logger.Warn("caching research cards failed", "batch_id", b.ID, "error", err)
		}
	}
}
