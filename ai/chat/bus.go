package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/divinechat/store"
)

// ConversationEventKind names a change to an owner's conversation list.
type ConversationEventKind string

const (
	ConversationCreated ConversationEventKind = "created"
	ConversationUpdated ConversationEventKind = "updated"
	ConversationDeleted ConversationEventKind = "deleted"
)

// Summary is the list projection of a conversation; message bodies are excluded.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SummaryOf projects a conversation to its summary fields.
func SummaryOf(c *store.Conversation) Summary {
	return Summary{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: store.UnixMilli(c.CreatedTs).UTC(),
		UpdatedAt: store.UnixMilli(c.UpdatedTs).UTC(),
	}
}

// ConversationEvent is delivered to subscribers of the owner.
type ConversationEvent struct {
	Kind         ConversationEventKind `json:"kind"`
	OwnerID      string                `json:"-"`
	Conversation Summary               `json:"conversation"`
}

const defaultSubscriberBuffer = 32

// Bus fans conversation events out to per-owner subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan ConversationEvent
	nextID      uint64
	buffer      int
}

// NewBus creates a new bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[uint64]chan ConversationEvent),
		buffer:      defaultSubscriberBuffer,
	}
}

// Subscribe registers for events of ownerID. The returned cancel func closes
// the channel and may be called more than once.
func (b *Bus) Subscribe(ownerID string) (<-chan ConversationEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan ConversationEvent, b.buffer)
	if b.subscribers[ownerID] == nil {
		b.subscribers[ownerID] = make(map[uint64]chan ConversationEvent)
	}
	b.subscribers[ownerID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers[ownerID], id)
			if len(b.subscribers[ownerID]) == 0 {
				delete(b.subscribers, ownerID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers event to every subscriber of event.OwnerID.
func (b *Bus) Publish(ctx context.Context, event ConversationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers[event.OwnerID] {
		select {
		case ch <- event:
		default:
			slog.WarnContext(ctx, "chat: dropping conversation event for slow subscriber",
				"owner_id", event.OwnerID,
				"subscriber", id,
				"kind", event.Kind,
				"conversation_id", event.Conversation.ID,
			)
		}
	}
}

// Subscribers returns the number of live subscriptions for ownerID.
func (b *Bus) Subscribers(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[ownerID])
}
