// ABOUTME: TTL guard that rejects repeat sends of the same message to the same conversation
// ABOUTME: Entries expire after the duplicate window; a failed send can be released for retry

package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	at      time.Time
	element *list.Element
}

// Guard remembers recently sent messages for a fixed window. Keys are kept in
// send order so the oldest can be evicted in O(1) once maxSize is reached.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	window  time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a guard. A zero window disables it: every send is allowed.
func New(window time.Duration, maxSize int) *Guard {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Guard{
		seen:    make(map[string]*entry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Key derives the guard key for a message sent to a conversation. An empty
// conversation id means a new conversation.
func Key(conversationID, text string) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Admit reports whether key may be sent now, and records it if so. A key seen
// within the window is rejected without refreshing its timestamp.
func (g *Guard) Admit(key string) bool {
	if g.window <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(now)

	if e, ok := g.seen[key]; ok {
		if now.Sub(e.at) < g.window {
			return false
		}
		e.at = now
		g.order.MoveToBack(e.element)
		return true
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldest()
	}
	g.seen[key] = &entry{at: now, element: g.order.PushBack(key)}
	return true
}

// Release forgets key so the same message can be sent again immediately.
// Used when a send fails before the server accepted it.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.seen[key]; ok {
		g.order.Remove(e.element)
		delete(g.seen, key)
	}
}

// Len returns the number of remembered sends, expired or not.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *Guard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.seen, key)
}

// pruneLocked drops expired entries from the front of the send order.
// Admit only ever appends with the current time, so the list stays sorted.
func (g *Guard) pruneLocked(now time.Time) {
	for front := g.order.Front(); front != nil; front = g.order.Front() {
		key, _ := front.Value.(string)
		e := g.seen[key]
		if e == nil || now.Sub(e.at) < g.window {
			return
		}
		g.order.Remove(front)
		delete(g.seen, key)
	}
}
