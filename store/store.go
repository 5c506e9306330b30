package store

import (
	"context"
	"errors"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// DefaultListLimit caps conversation listings.
const DefaultListLimit = 50

// Store provides database access to conversations.
type Store struct {
	driver Driver
	now    func() time.Time
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{
		driver: driver,
		now:    time.Now,
	}
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateConversation creates an empty conversation owned by ownerID.
func (s *Store) CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error) {
	now := s.now().UnixMilli()
	return s.driver.CreateConversation(ctx, &Conversation{
		ID:        shortuuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Messages:  []Message{},
		CreatedTs: now,
		UpdatedTs: now,
	})
}

// FindOwnedConversation returns the full conversation, or ErrNotFound when it
// does not exist or belongs to someone else.
func (s *Store) FindOwnedConversation(ctx context.Context, id, ownerID string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{
		ID:      &id,
		OwnerID: &ownerID,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// SaveConversation writes the whole document and refreshes updated_ts.
func (s *Store) SaveConversation(ctx context.Context, conversation *Conversation) (*Conversation, error) {
	updated := conversation.Clone()
	updated.UpdatedTs = s.now().UnixMilli()
	if updated.UpdatedTs <= conversation.UpdatedTs {
		// Keep updated_ts strictly increasing so recency ordering is stable.
		updated.UpdatedTs = conversation.UpdatedTs + 1
	}
	return s.driver.ReplaceConversation(ctx, updated)
}

// RenameConversation updates the title only.
func (s *Store) RenameConversation(ctx context.Context, id, ownerID, title string) (*Conversation, error) {
	updatedTs := s.now().UnixMilli()
	return s.driver.UpdateConversation(ctx, &UpdateConversation{
		ID:        id,
		OwnerID:   ownerID,
		Title:     &title,
		UpdatedTs: &updatedTs,
	})
}

// DeleteOwnedConversation reports whether a conversation was deleted.
func (s *Store) DeleteOwnedConversation(ctx context.Context, id, ownerID string) (bool, error) {
	err := s.driver.DeleteConversation(ctx, &DeleteConversation{ID: id, OwnerID: ownerID})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListOwnedConversations returns summaries sorted by updated_ts descending.
// Messages are not loaded.
func (s *Store) ListOwnedConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.driver.ListConversations(ctx, &FindConversation{
		OwnerID:         &ownerID,
		Limit:           limit,
		ExcludeMessages: true,
	})
}
