package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no conversation matches the id and owner pair.
var ErrNotFound = errors.New("conversation not found")

// Driver is an interface for store driver.
// Every call that addresses a single conversation filters by both id and owner.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	// ReplaceConversation atomically rewrites title, messages and updated_ts.
	ReplaceConversation(ctx context.Context, conversation *Conversation) (*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error
}
