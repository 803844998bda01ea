// ABOUTME: In-memory fan-out of conversation model changes to render subscribers
// ABOUTME: Non-blocking publish; slow subscribers lose notifications rather than stall the stream

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ChangeKind says which part of the model changed
type ChangeKind string

const (
	ChangeMessages  ChangeKind = "messages"
	ChangeStreaming ChangeKind = "streaming"
	ChangePromoted  ChangeKind = "promoted"
	ChangeActive    ChangeKind = "active"
	ChangeError     ChangeKind = "error"
	ChangeDocument  ChangeKind = "document"
	ChangeCards     ChangeKind = "cards"
)

// Change is a render hint: subscribers re-read the models they care about.
type Change struct {
	Kind           ChangeKind
	ConversationID string
}

// Broadcaster provides in-memory pub/sub for model changes. Changes are
// hints, so a full subscriber channel simply drops them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Change // subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is cleaned up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a change to every subscriber without blocking.
func (b *Broadcaster) Publish(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- change:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"sub_id", id,
				"kind", change.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
