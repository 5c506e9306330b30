package v1

import (
	"time"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/store"
)

// Conversation is the full wire representation of a conversation.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []store.Message `json:"messages"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func convertConversationFromStore(c *store.Conversation) *Conversation {
	messages := c.Messages
	if messages == nil {
		messages = []store.Message{}
	}
	return &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  messages,
		CreatedAt: store.UnixMilli(c.CreatedTs).UTC(),
		UpdatedAt: store.UnixMilli(c.UpdatedTs).UTC(),
	}
}

func convertSummariesFromStore(list []*store.Conversation) []chat.Summary {
	summaries := make([]chat.Summary, 0, len(list))
	for _, c := range list {
		summaries = append(summaries, chat.SummaryOf(c))
	}
	return summaries
}

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// RenameConversationRequest is the body of PATCH /conversations/{id}.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// ExchangeRequest is the body of the exchange endpoints.
type ExchangeRequest struct {
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
	Regenerate  bool               `json:"regenerate,omitempty"`
	Batch       bool               `json:"batch,omitempty"`
}

// EditMessageRequest is the body of POST /conversations/{id}/messages/{index}/edit.
type EditMessageRequest struct {
	Text  string `json:"text"`
	Batch bool   `json:"batch,omitempty"`
}
