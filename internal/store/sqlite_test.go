// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation round-trips, renames with cascade, card batches, promotions and migrations

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/coven-compose/internal/conversation"
	"github.com/2389/coven-compose/internal/timeline"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_ReopenRunsMigrationsIdempotently(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStore(dbPath)
		if err != nil {
			t.Fatalf("open #%d failed: %v", i+1, err)
		}
		store.Close()
	}
}

func TestSaveAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	conv := sampleConversation("abc")
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.Title != conv.Title {
		t.Errorf("expected title %q, got %q", conv.Title, got.Title)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", conv.CreatedAt, got.CreatedAt)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	for i, msg := range got.Messages {
		want := conv.Messages[i]
		if msg.ID != want.ID || msg.Role != want.Role || msg.Content != want.Content {
			t.Errorf("message %d: expected %+v, got %+v", i, want, msg)
		}
		if !msg.Timestamp.Equal(want.Timestamp) {
			t.Errorf("message %d: expected timestamp %v, got %v", i, want.Timestamp, msg.Timestamp)
		}
	}
}

func TestSaveConversation_ReplacesMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	conv := sampleConversation("abc")
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	conv.Messages = append(conv.Messages, conversation.Message{
		ID:        "m3",
		Role:      conversation.RoleUser,
		Content:   "Shorter please",
		Timestamp: conv.Messages[1].Timestamp.Add(time.Second),
	})
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("second SaveConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[2].Content != "Shorter please" {
		t.Errorf("expected last message to be appended, got %q", got.Messages[2].Content)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	older := sampleConversation("older")
	newer := sampleConversation("newer")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)
	for _, c := range []*conversation.Conversation{older, newer} {
		if err := store.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation failed: %v", err)
		}
	}

	convs, err := store.ListConversations(ctx, 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != "newer" {
		t.Errorf("expected newest first, got %s", convs[0].ID)
	}
	if len(convs[0].Messages) != 0 {
		t.Error("listed conversations should not carry messages")
	}

	limited, err := store.ListConversations(ctx, 1)
	if err != nil {
		t.Fatalf("ListConversations with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 conversation, got %d", len(limited))
	}
}

func TestRenameConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	tempID := conversation.TempIDPrefix + "1234"
	if err := store.SaveConversation(ctx, sampleConversation(tempID)); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	batch := &timeline.Batch{ID: "b1", ConversationID: tempID, Query: "hooks", CreatedAt: time.Now().UTC()}
	if err := store.SaveCardBatch(ctx, batch); err != nil {
		t.Fatalf("SaveCardBatch failed: %v", err)
	}

	if err := store.RenameConversation(ctx, tempID, "abc"); err != nil {
		t.Fatalf("RenameConversation failed: %v", err)
	}

	if _, err := store.GetConversation(ctx, tempID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old id to be gone, got %v", err)
	}
	got, err := store.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("expected messages to move with the conversation, got %d", len(got.Messages))
	}

	batches, err := store.ListCardBatches(ctx, "abc")
	if err != nil {
		t.Fatalf("ListCardBatches failed: %v", err)
	}
	if len(batches) != 1 {
		t.Errorf("expected card batch to move, got %d", len(batches))
	}
}

func TestRenameConversation_OverwritesCollision(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	stale := sampleConversation("abc")
	stale.Messages = stale.Messages[:1]
	stale.Messages[0].ID = "stale-msg"
	stale.Messages[0].Content = "stale"
	if err := store.SaveConversation(ctx, stale); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := store.SaveConversation(ctx, sampleConversation("local-x")); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := store.RenameConversation(ctx, "local-x", "abc"); err != nil {
		t.Fatalf("RenameConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content == "stale" {
		t.Errorf("expected migrated conversation to replace the stale one, got %+v", got.Messages)
	}
}

func TestRenameConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.RenameConversation(context.Background(), "missing", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCardBatches(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	second := &timeline.Batch{
		ID:             "b2",
		ConversationID: "abc",
		Query:          "launch posts",
		Mode:           "deep",
		CreatedAt:      base.Add(time.Minute),
		Cards:          []timeline.Card{{Title: "Launch checklist", URL: "https://example.com/launch"}},
	}
	first := &timeline.Batch{ID: "b1", ConversationID: "abc", Query: "hooks", CreatedAt: base}
	other := &timeline.Batch{ID: "b3", ConversationID: "other", Query: "x", CreatedAt: base}

	for _, b := range []*timeline.Batch{second, first, other} {
		if err := store.SaveCardBatch(ctx, b); err != nil {
			t.Fatalf("SaveCardBatch failed: %v", err)
		}
	}

	batches, err := store.ListCardBatches(ctx, "abc")
	if err != nil {
		t.Fatalf("ListCardBatches failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].ID != "b1" || batches[1].ID != "b2" {
		t.Errorf("expected oldest first, got %s, %s", batches[0].ID, batches[1].ID)
	}
	if batches[1].Mode != "deep" {
		t.Errorf("expected mode deep, got %q", batches[1].Mode)
	}
	if len(batches[1].Cards) != 1 || batches[1].Cards[0].Title != "Launch checklist" {
		t.Errorf("cards did not round-trip: %+v", batches[1].Cards)
	}

	if err := store.SaveCardBatch(ctx, &timeline.Batch{ConversationID: "abc"}); err == nil {
		t.Error("expected error for batch without id")
	}
}

func TestPromotions(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	log := []conversation.Promotion{
		{From: "local-1", To: "s1", At: at},
		{From: "s1", To: "s2", At: at.Add(time.Second)},
	}
	for _, p := range log {
		if err := store.RecordPromotion(ctx, p); err != nil {
			t.Fatalf("RecordPromotion failed: %v", err)
		}
	}

	got, err := store.ListPromotions(ctx)
	if err != nil {
		t.Fatalf("ListPromotions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 promotions, got %d", len(got))
	}
	for i := range log {
		if got[i].From != log[i].From || got[i].To != log[i].To || !got[i].At.Equal(log[i].At) {
			t.Errorf("promotion %d: expected %+v, got %+v", i, log[i], got[i])
		}
	}
}

func sampleConversation(id string) *conversation.Conversation {
	ts := time.Date(2026, 4, 1, 9, 0, 0, 123456789, time.UTC)
	return &conversation.Conversation{
		ID:        id,
		Title:     "Make it punchier",
		CreatedAt: ts,
		UpdatedAt: ts.Add(time.Second),
		Messages: []conversation.Message{
			{ID: id + "-m1", Role: conversation.RoleUser, Content: "Make it punchier", Timestamp: ts},
			{ID: id + "-m2", Role: conversation.RoleAssistant, Content: "Sure, here you go!", Timestamp: ts.Add(time.Second)},
		},
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
