package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/store"
)

// ErrExchangeInFlight is returned when an exchange is started while another
// one on the same conversation has not terminated.
var ErrExchangeInFlight = errors.New("an exchange is already in flight")

// State is the reduced view of one conversation.
type State struct {
	ConversationID string
	Title          string
	Messages       []store.Message
	// Streaming is true between Begin and the terminal event.
	Streaming bool
	// Err is the classification of the last failed exchange, or a transport
	// failure description.
	Err string
}

// Reducer folds the exchange event stream into conversation state.
//
// Begin inserts an optimistic user message in a pending slot. The slot is
// replaced by the canonical record on userMessage, or removed by Fail when
// the transport fails before any event arrived.
type Reducer struct {
	mu sync.Mutex

	state State
	// snapshot restores the pre-send messages on rollback.
	snapshot  []store.Message
	pending   int
	open      bool
	confirmed bool
}

// NewReducer creates a reducer over an existing conversation.
func NewReducer(conversationID, title string, messages []store.Message) *Reducer {
	return &Reducer{
		state: State{
			ConversationID: conversationID,
			Title:          title,
			Messages:       cloneMessages(messages),
		},
		pending: -1,
	}
}

// Begin starts an exchange with an optimistic user message.
func (r *Reducer) Begin(text string, attachments []store.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.start(); err != nil {
		return err
	}
	r.state.Messages = append(r.state.Messages, store.Message{
		Role:        store.RoleUser,
		Content:     strings.TrimSpace(text),
		Timestamp:   time.Now(),
		Attachments: attachments,
	})
	r.pending = len(r.state.Messages) - 1
	return nil
}

// BeginRegenerate starts a regenerate exchange, hiding the trailing
// assistant reply it will replace.
func (r *Reducer) BeginRegenerate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.start(); err != nil {
		return err
	}
	if n := len(r.state.Messages); n > 0 && r.state.Messages[n-1].Role == store.RoleAssistant {
		r.state.Messages = r.state.Messages[:n-1]
	}
	return nil
}

// BeginEdit starts an edit exchange: the view is truncated to end at the
// edited message, which takes the new text.
func (r *Reducer) BeginEdit(index int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.state.Messages) {
		return fmt.Errorf("message %d not found", index)
	}
	if r.state.Messages[index].Role != store.RoleUser {
		return fmt.Errorf("message %d is not a user message", index)
	}
	if err := r.start(); err != nil {
		return err
	}
	r.state.Messages = r.state.Messages[:index+1]
	r.state.Messages[index].Content = strings.TrimSpace(text)
	return nil
}

func (r *Reducer) start() error {
	if r.state.Streaming {
		return ErrExchangeInFlight
	}
	r.snapshot = cloneMessages(r.state.Messages)
	r.state.Streaming = true
	r.state.Err = ""
	r.pending = -1
	r.open = false
	r.confirmed = false
	return nil
}

// SetConversationID adopts the id of an implicitly created conversation.
func (r *Reducer) SetConversationID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ConversationID = id
}

// Apply folds one event into the state.
func (r *Reducer) Apply(event chat.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Streaming {
		return fmt.Errorf("unexpected %s event outside an exchange", event.Type)
	}
	r.confirmed = true

	switch event.Type {
	case chat.EventUserMessage:
		if event.Message == nil {
			return errors.New("userMessage event without message")
		}
		if r.pending >= 0 {
			r.state.Messages[r.pending] = *event.Message
		} else {
			r.state.Messages = append(r.state.Messages, *event.Message)
		}
		r.pending = -1
	case chat.EventChunk:
		if r.open {
			last := &r.state.Messages[len(r.state.Messages)-1]
			last.Content += event.Content
		} else {
			r.state.Messages = append(r.state.Messages, store.Message{
				Role:      store.RoleAssistant,
				Content:   event.Content,
				Timestamp: time.Now(),
			})
			r.open = true
		}
	case chat.EventComplete:
		if event.AssistantMessage == nil {
			return errors.New("complete event without assistantMessage")
		}
		r.closeWith(*event.AssistantMessage)
		if event.ChatTitle != "" {
			r.state.Title = event.ChatTitle
		}
	case chat.EventError:
		if event.Message != nil {
			r.closeWith(*event.Message)
		} else {
			r.dropOpen()
			r.finish()
		}
		r.state.Err = event.Error
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}

// Fail handles a transport failure. Before the first event it rolls the
// optimistic insert back entirely; afterwards it keeps the confirmed records
// and drops the unfinished reply.
func (r *Reducer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Streaming {
		return
	}
	if !r.confirmed {
		r.state.Messages = r.snapshot
	} else {
		r.dropOpen()
	}
	r.finish()
	if err != nil {
		r.state.Err = err.Error()
	}
}

// State returns a copy of the current state.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state
	s.Messages = cloneMessages(r.state.Messages)
	return s
}

func (r *Reducer) closeWith(message store.Message) {
	if r.open {
		r.state.Messages[len(r.state.Messages)-1] = message
	} else {
		r.state.Messages = append(r.state.Messages, message)
	}
	r.finish()
}

func (r *Reducer) dropOpen() {
	if r.open {
		r.state.Messages = r.state.Messages[:len(r.state.Messages)-1]
	}
	r.open = false
}

func (r *Reducer) finish() {
	r.state.Streaming = false
	r.open = false
	r.pending = -1
	r.snapshot = nil
}

func cloneMessages(messages []store.Message) []store.Message {
	if messages == nil {
		return []store.Message{}
	}
	out := make([]store.Message, len(messages))
	copy(out, messages)
	return out
}
