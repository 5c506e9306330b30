package chat

import (
	"encoding/json"
	"fmt"

	"github.com/hrygo/divinechat/store"
)

// EventType tags a record of the exchange event stream.
type EventType string

const (
	EventUserMessage EventType = "userMessage"
	EventChunk       EventType = "chunk"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Event is one record of the exchange stream. Which fields are meaningful
// depends on Type; MarshalJSON emits exactly the fields of that type.
type Event struct {
	Type             EventType      `json:"type"`
	Message          *store.Message `json:"message,omitempty"`
	Content          string         `json:"content,omitempty"`
	AssistantMessage *store.Message `json:"assistantMessage,omitempty"`
	ChatTitle        string         `json:"chatTitle,omitempty"`
	Error            string         `json:"error,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventUserMessage:
		return json.Marshal(struct {
			Type    EventType      `json:"type"`
			Message *store.Message `json:"message"`
		}{e.Type, e.Message})
	case EventChunk:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventComplete:
		return json.Marshal(struct {
			Type             EventType      `json:"type"`
			AssistantMessage *store.Message `json:"assistantMessage"`
			ChatTitle        string         `json:"chatTitle"`
		}{e.Type, e.AssistantMessage, e.ChatTitle})
	case EventError:
		return json.Marshal(struct {
			Type    EventType      `json:"type"`
			Message *store.Message `json:"message"`
			Error   string         `json:"error"`
		}{e.Type, e.Message, e.Error})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// IsTerminal reports whether the event ends an exchange stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Emitter receives exchange events in order.
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event Event) error

func (f EmitterFunc) Emit(event Event) error {
	return f(event)
}
