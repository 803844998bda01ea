// ABOUTME: Store interface for the local cache of conversations, research cards and promotions
// ABOUTME: Implemented by SQLiteStore for the CLI and MockStore for tests

package store

import (
	"context"
	"errors"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/timeline"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// Store caches what the session has seen so history can be shown offline.
type Store interface {
	// SaveConversation inserts or replaces a conversation and its messages.
	SaveConversation(ctx context.Context, conv *conversation.Conversation) error

	// GetConversation returns a conversation with its messages in transcript order.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)

	// ListConversations returns conversations without messages, most recently
	// updated first. A limit of 0 or less returns all of them.
	ListConversations(ctx context.Context, limit int) ([]*conversation.Conversation, error)

	// RenameConversation moves a conversation, its messages and card batches
	// from oldID to newID. An existing conversation under newID is replaced.
	// Returns ErrNotFound if oldID doesn't exist.
	RenameConversation(ctx context.Context, oldID, newID string) error

	// SaveCardBatch inserts or replaces a research card batch.
	SaveCardBatch(ctx context.Context, batch *timeline.Batch) error

	// ListCardBatches returns the batches of a conversation, oldest first.
	ListCardBatches(ctx context.Context, conversationID string) ([]timeline.Batch, error)

	// RecordPromotion appends an identity transition to the promotion log.
	RecordPromotion(ctx context.Context, p conversation.Promotion) error

	// ListPromotions returns the promotion log, oldest first.
	ListPromotions(ctx context.Context) ([]conversation.Promotion, error)

	// Close releases resources held by the store.
	Close() error
}
