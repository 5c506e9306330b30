package client

import (
	"sort"
	"sync"

	"github.com/hrygo/divinechat/ai/chat"
)

// ListReducer keeps a conversation list in sync with bus events.
type ListReducer struct {
	mu    sync.Mutex
	items []chat.Summary
}

// NewListReducer starts from a fetched list.
func NewListReducer(items []chat.Summary) *ListReducer {
	l := &ListReducer{items: append([]chat.Summary(nil), items...)}
	l.sort()
	return l
}

// Apply folds one conversation event into the list.
func (l *ListReducer) Apply(event chat.ConversationEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(event.Conversation.ID)
	switch event.Kind {
	case chat.ConversationCreated, chat.ConversationUpdated:
		if i >= 0 {
			l.items[i] = event.Conversation
		} else {
			l.items = append(l.items, event.Conversation)
		}
		l.sort()
	case chat.ConversationDeleted:
		if i >= 0 {
			l.items = append(l.items[:i], l.items[i+1:]...)
		}
	}
}

// Items returns the list sorted by recency.
func (l *ListReducer) Items() []chat.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chat.Summary(nil), l.items...)
}

func (l *ListReducer) indexOf(id string) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l *ListReducer) sort() {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].UpdatedAt.After(l.items[j].UpdatedAt)
	})
}
