// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/timeline"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation // keyed by conversation ID
	batches       map[string]timeline.Batch             // keyed by batch ID
	promotions    []conversation.Promotion
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*conversation.Conversation),
		batches:       make(map[string]timeline.Batch),
	}
}

// SaveConversation stores a copy of conv.
func (m *MockStore) SaveConversation(ctx context.Context, conv *conversation.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	c.Messages = slices.Clone(conv.Messages)
	if existing, ok := m.conversations[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	result.Messages = slices.Clone(c.Messages)
	return &result, nil
}

// ListConversations returns conversations without messages, newest first.
func (m *MockStore) ListConversations(ctx context.Context, limit int) ([]*conversation.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convs := make([]*conversation.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		result := *c
		result.Messages = nil
		convs = append(convs, &result)
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// RenameConversation moves a conversation and its batches to newID.
func (m *MockStore) RenameConversation(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[oldID]
	if !ok {
		return ErrNotFound
	}
	delete(m.conversations, oldID)
	c.ID = newID
	m.conversations[newID] = c

	for id, b := range m.batches {
		switch b.ConversationID {
		case newID:
			delete(m.batches, id)
		case oldID:
			b.ConversationID = newID
			m.batches[id] = b
		}
	}
	return nil
}

// SaveCardBatch stores a copy of batch.
func (m *MockStore) SaveCardBatch(ctx context.Context, batch *timeline.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("card batch id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := *batch
	b.Cards = slices.Clone(batch.Cards)
	m.batches[b.ID] = b
	return nil
}

// ListCardBatches returns the batches of a conversation, oldest first.
func (m *MockStore) ListCardBatches(ctx context.Context, conversationID string) ([]timeline.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []timeline.Batch
	for _, b := range m.batches {
		if b.ConversationID == conversationID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordPromotion appends to the promotion log.
func (m *MockStore) RecordPromotion(ctx context.Context, p conversation.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions = append(m.promotions, p)
	return nil
}

// ListPromotions returns the promotion log.
func (m *MockStore) ListPromotions(ctx context.Context) ([]conversation.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.promotions), nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
