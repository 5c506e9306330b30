package store

import (
	"time"
)

// Role tags the author of a message. Only user and assistant messages are
// persisted; the system instruction is injected at call time.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment describes a file the user sent with a message.
// The bytes themselves live with an external uploader; Data is only set for
// small inline payloads (base64).
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Data      string `json:"data,omitempty"`
}

type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Conversation is persisted as one document: the message list is always read
// and written as a whole.
type Conversation struct {
	ID       string
	OwnerID  string
	Title    string
	Messages []Message
	// Unix milliseconds.
	CreatedTs int64
	UpdatedTs int64
}

// Clone returns a deep copy safe to mutate as a working copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Attachments != nil {
			m.Attachments = append([]Attachment(nil), m.Attachments...)
		}
		clone.Messages[i] = m
	}
	return &clone
}

// LastMessage returns the trailing message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

type FindConversation struct {
	ID      *string
	OwnerID *string

	// Limit <= 0 means no limit.
	Limit int
	// ExcludeMessages projects rows to summary fields only.
	ExcludeMessages bool
}

// UpdateConversation patches individual fields. Whole-document writes go
// through Driver.ReplaceConversation instead.
type UpdateConversation struct {
	ID        string
	OwnerID   string
	Title     *string
	UpdatedTs *int64
}

type DeleteConversation struct {
	ID      string
	OwnerID string
}

// UnixMilli converts a stored timestamp back to time.
func UnixMilli(ts int64) time.Time {
	return time.UnixMilli(ts)
}
