package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver is an in-memory Driver for facade tests.
type mockDriver struct {
	mu    sync.Mutex
	rows  map[string]*Conversation
	finds []*FindConversation
}

func newMockDriver() *mockDriver {
	return &mockDriver{rows: make(map[string]*Conversation)}
}

func (m *mockDriver) Migrate(context.Context) error { return nil }
func (m *mockDriver) Close() error                  { return nil }

func (m *mockDriver) CreateConversation(_ context.Context, create *Conversation) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[create.ID] = create.Clone()
	return create.Clone(), nil
}

func (m *mockDriver) ListConversations(_ context.Context, find *FindConversation) ([]*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds = append(m.finds, find)

	var list []*Conversation
	for _, c := range m.rows {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.OwnerID != nil && c.OwnerID != *find.OwnerID {
			continue
		}
		clone := c.Clone()
		if find.ExcludeMessages {
			clone.Messages = nil
		}
		list = append(list, clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedTs > list[j].UpdatedTs })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (m *mockDriver) ReplaceConversation(_ context.Context, c *Conversation) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[c.ID]
	if !ok || existing.OwnerID != c.OwnerID {
		return nil, ErrNotFound
	}
	existing.Title = c.Title
	existing.Messages = c.Clone().Messages
	existing.UpdatedTs = c.UpdatedTs
	return existing.Clone(), nil
}

func (m *mockDriver) UpdateConversation(_ context.Context, update *UpdateConversation) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[update.ID]
	if !ok || existing.OwnerID != update.OwnerID {
		return nil, ErrNotFound
	}
	if update.Title != nil {
		existing.Title = *update.Title
	}
	if update.UpdatedTs != nil {
		existing.UpdatedTs = *update.UpdatedTs
	}
	return existing.Clone(), nil
}

func (m *mockDriver) DeleteConversation(_ context.Context, del *DeleteConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[del.ID]
	if !ok || existing.OwnerID != del.OwnerID {
		return ErrNotFound
	}
	delete(m.rows, del.ID)
	return nil
}

func TestStoreOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	s := New(newMockDriver())

	c, err := s.CreateConversation(ctx, "alice", "New Chat")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.Messages)

	found, err := s.FindOwnedConversation(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "New Chat", found.Title)

	_, err = s.FindOwnedConversation(ctx, c.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := s.DeleteOwnedConversation(ctx, c.ID, "mallory")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.DeleteOwnedConversation(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.FindOwnedConversation(ctx, c.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveRefreshesUpdatedTs(t *testing.T) {
	ctx := context.Background()
	s := New(newMockDriver())
	fixed := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return fixed }

	c, err := s.CreateConversation(ctx, "alice", "t")
	require.NoError(t, err)

	c.Messages = append(c.Messages, Message{Role: RoleUser, Content: "hi", Timestamp: fixed})
	saved, err := s.SaveConversation(ctx, c)
	require.NoError(t, err)

	// Clock did not move, updated_ts still advances.
	assert.Greater(t, saved.UpdatedTs, c.UpdatedTs)
	assert.Len(t, saved.Messages, 1)

	c.OwnerID = "mallory"
	_, err = s.SaveConversation(ctx, c)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreListClampsLimit(t *testing.T) {
	ctx := context.Background()
	d := newMockDriver()
	s := New(d)

	for i := 0; i < 3; i++ {
		_, err := s.CreateConversation(ctx, "alice", "t")
		require.NoError(t, err)
	}

	list, err := s.ListOwnedConversations(ctx, "alice", 500)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	last := d.finds[len(d.finds)-1]
	assert.Equal(t, DefaultListLimit, last.Limit)
	assert.True(t, last.ExcludeMessages)
}

func TestStoreRename(t *testing.T) {
	ctx := context.Background()
	s := New(newMockDriver())
	c, err := s.CreateConversation(ctx, "alice", "old")
	require.NoError(t, err)

	renamed, err := s.RenameConversation(ctx, c.ID, "alice", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", renamed.Title)

	_, err = s.RenameConversation(ctx, c.ID, "bob", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationClone(t *testing.T) {
	c := &Conversation{
		ID: "c1",
		Messages: []Message{
			{Role: RoleUser, Content: "a", Attachments: []Attachment{{Name: "f.txt"}}},
		},
	}
	clone := c.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Attachments[0].Name = "g.txt"
	clone.Messages = append(clone.Messages, Message{Role: RoleAssistant})

	assert.Equal(t, "a", c.Messages[0].Content)
	assert.Equal(t, "f.txt", c.Messages[0].Attachments[0].Name)
	assert.Len(t, c.Messages, 1)
	assert.Equal(t, RoleAssistant, clone.LastMessage().Role)
	assert.Nil(t, (&Conversation{}).LastMessage())
}
