// ABOUTME: Merges chat messages and research-card batches into one chronological render sequence
// ABOUTME: Pure projection with deterministic tie-breaking so recomputation never reorders entries

package timeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/2389/coven-compose/internal/conversation"
)

// EntryType tags a timeline entry.
type EntryType string

const (
	EntryMessage EntryType = "message"
	EntryCards   EntryType = "cards"
)

// Card is one research result shown alongside the chat.
type Card struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Batch is a set of research cards produced by one research step.
type Batch struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Cards          []Card    `json:"cards"`
	Query          string    `json:"query"`
	Mode           string    `json:"mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// Entry is one item of the merged timeline. Exactly one of Message or
// Cards is set, according to Type.
type Entry struct {
	Type      EntryType
	Message   *conversation.Message
	Cards     *Batch
	Timestamp time.Time
}

// Merge returns messages, persisted batches and the optional live batch as
// a single sequence sorted by timestamp. Entries with equal timestamps are
// ordered messages first (in transcript order), then batches by id and
// query, so the result does not depend on the order batches were supplied.
// A live batch already present in persisted is not repeated.
func Merge(messages []conversation.Message, persisted []Batch, live *Batch) []Entry {
	batches := slices.Clone(persisted)
	if live != nil && !containsBatch(persisted, *live) {
		batches = append(batches, *live)
	}

	entries := make([]Entry, 0, len(messages)+len(batches))
	for i := range messages {
		msg := messages[i]
		entries = append(entries, Entry{Type: EntryMessage, Message: &msg, Timestamp: msg.Timestamp})
	}

	slices.SortStableFunc(batches, compareBatches)
	for i := range batches {
		b := batches[i]
		entries = append(entries, Entry{Type: EntryCards, Cards: &b, Timestamp: b.CreatedAt})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(rank(a.Type), rank(b.Type))
	})
	return entries
}

func compareBatches(a, b Batch) int {
	return cmp.Or(
		a.CreatedAt.Compare(b.CreatedAt),
		cmp.Compare(a.ID, b.ID),
		cmp.Compare(a.Query, b.Query),
	)
}

func containsBatch(batches []Batch, live Batch) bool {
	return slices.ContainsFunc(batches, func(b Batch) bool {
		if live.ID != "" && b.ID == live.ID {
			return true
		}
		return b.Query == live.Query && b.CreatedAt.Equal(live.CreatedAt)
	})
}

func rank(t EntryType) int {
	if t == EntryMessage {
		return 0
	}
	return 1
}
