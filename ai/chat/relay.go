package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/divinechat/ai/core/llm"
	"github.com/hrygo/divinechat/store"
)

const (
	// FallbackNotice replaces a reply when the upstream produced no content.
	FallbackNotice = "I wasn't able to generate a response. Please try again."
	// ErrorNotice is the assistant message recorded when an exchange fails.
	ErrorNotice = "Sorry, I encountered an error while generating a response. Please try again."

	commitTimeout = 15 * time.Second
)

// Recorder receives relay metrics.
type Recorder interface {
	ExchangeStarted()
	ExchangeFinished(mode, outcome string, latency time.Duration)
	RecordFirstChunk(latency time.Duration)
	RecordChunk()
	RecordError(classification string)
	RecordLLMTokens(model, tokenType string, count int)
}

type nopRecorder struct{}

func (nopRecorder) ExchangeStarted()                               {}
func (nopRecorder) ExchangeFinished(string, string, time.Duration) {}
func (nopRecorder) RecordFirstChunk(time.Duration)                 {}
func (nopRecorder) RecordChunk()                                   {}
func (nopRecorder) RecordError(string)                             {}
func (nopRecorder) RecordLLMTokens(string, string, int)            {}

// Config configures the relay.
type Config struct {
	SystemPrompt string
	// Model labels token metrics.
	Model   string
	Metrics Recorder
}

// Relay drives exchanges: it records the user message, relays upstream
// increments as they arrive and commits the final conversation exactly once.
type Relay struct {
	store        *store.Store
	llm          llm.Service
	bus          *Bus
	metrics      Recorder
	systemPrompt string
	model        string
	now          func() time.Time

	inflight sync.WaitGroup
}

// NewRelay creates a new relay. bus may be nil.
func NewRelay(s *store.Store, svc llm.Service, bus *Bus, cfg Config) *Relay {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Relay{
		store:        s,
		llm:          svc,
		bus:          bus,
		metrics:      metrics,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		now:          time.Now,
	}
}

// Request is one exchange.
type Request struct {
	ConversationID string
	OwnerID        string
	Text           string
	Attachments    []store.Attachment
	// Regenerate replaces the trailing assistant reply instead of sending a new message.
	Regenerate bool
	// Batch requests a single-shot completion, relayed as one chunk.
	Batch bool
}

// ValidateRequest rejects input that can never start an exchange.
func ValidateRequest(req Request) error {
	if req.Regenerate {
		return nil
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.Name) == "" {
			return &ValidationError{Field: "attachments", Reason: "name is required"}
		}
	}
	return nil
}

// Exchange is a validated exchange bound to a working copy of its conversation.
type Exchange struct {
	relay   *Relay
	req     Request
	working *store.Conversation
}

// Prepare validates req and loads the conversation. It returns a
// ValidationError or ErrNotFound without side effects.
func (r *Relay) Prepare(ctx context.Context, req Request) (*Exchange, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	conversation, err := r.store.FindOwnedConversation(ctx, req.ConversationID, req.OwnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	working := conversation.Clone()
	if req.Regenerate {
		if last := working.LastMessage(); last != nil && last.Role == store.RoleAssistant {
			working.Messages = working.Messages[:len(working.Messages)-1]
		}
		if last := working.LastMessage(); last == nil || last.Role != store.RoleUser {
			return nil, &ValidationError{Field: "regenerate", Reason: "conversation does not end with a user message"}
		}
	}

	return &Exchange{relay: r, req: req, working: working}, nil
}

// EditRequest replaces a user message and regenerates from it.
type EditRequest struct {
	ConversationID string
	OwnerID        string
	Index          int
	Text           string
	Batch          bool
}

// PrepareEdit truncates the conversation to end at the edited user message,
// persists the new content and returns a regenerate exchange.
func (r *Relay) PrepareEdit(ctx context.Context, req EditRequest) (*Exchange, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	conversation, err := r.store.FindOwnedConversation(ctx, req.ConversationID, req.OwnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if req.Index < 0 || req.Index >= len(conversation.Messages) {
		return nil, ErrMessageNotFound
	}
	if conversation.Messages[req.Index].Role != store.RoleUser {
		return nil, &ValidationError{Field: "index", Reason: "only user messages can be edited"}
	}

	edited := conversation.Clone()
	edited.Messages = edited.Messages[:req.Index+1]
	edited.Messages[req.Index].Content = text

	saved, err := r.store.SaveConversation(ctx, edited)
	if err != nil {
		return nil, fmt.Errorf("save edited conversation: %w", err)
	}
	r.publish(ctx, ConversationUpdated, saved)

	return &Exchange{
		relay: r,
		req: Request{
			ConversationID: req.ConversationID,
			OwnerID:        req.OwnerID,
			Text:           text,
			Regenerate:     true,
			Batch:          req.Batch,
		},
		working: saved.Clone(),
	}, nil
}

// Exchange prepares and runs req. Rejections are returned as errors; every
// run that starts ends in exactly one terminal event.
func (r *Relay) Exchange(ctx context.Context, req Request, emitter Emitter) (*Result, error) {
	x, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return x.Run(ctx, emitter), nil
}

// Conversation returns the working copy the exchange will run against.
func (x *Exchange) Conversation() *store.Conversation {
	return x.working
}

// Result is the terminal state of an exchange.
type Result struct {
	// Conversation is the committed document, nil when the commit failed.
	Conversation *store.Conversation
	// Terminal is the last event emitted, complete or error.
	Terminal Event
	Chunks   int
	Err      error
}

// Run drives the exchange to a terminal event. It keeps going after the
// caller goes away: emission failures only stop further emission.
func (x *Exchange) Run(ctx context.Context, emitter Emitter) *Result {
	r := x.relay
	r.inflight.Add(1)
	defer r.inflight.Done()

	ctx = context.WithoutCancel(ctx)
	start := r.now()
	mode := "stream"
	if x.req.Batch {
		mode = "batch"
	}

	r.metrics.ExchangeStarted()
	out := &guardedEmitter{emitter: emitter, ctx: ctx, conversationID: x.working.ID}

	if !x.req.Regenerate {
		userMessage := store.Message{
			Role:        store.RoleUser,
			Content:     strings.TrimSpace(x.req.Text),
			Timestamp:   r.timestamp(),
			Attachments: x.req.Attachments,
		}
		x.working.Messages = append(x.working.Messages, userMessage)
		out.emit(Event{Type: EventUserMessage, Message: &userMessage})
	}

	history := llm.BuildHistory(r.systemPrompt, x.working.Messages)
	var content string
	var err error
	if x.req.Batch {
		content, err = x.batch(ctx, history, out)
	} else {
		content, err = x.stream(ctx, history, out)
	}

	var result *Result
	if err != nil {
		result = x.fail(ctx, err, out)
	} else {
		if content == "" {
			content = FallbackNotice
			out.emit(Event{Type: EventChunk, Content: content})
			out.chunks++
		}
		result = x.finalize(ctx, content, out)
	}
	result.Chunks = out.chunks

	outcome := "complete"
	if result.Terminal.Type == EventError {
		outcome = "error"
	}
	duration := r.now().Sub(start)
	r.metrics.ExchangeFinished(mode, outcome, duration)
	slog.InfoContext(ctx, "chat: exchange finished",
		"conversation_id", x.working.ID,
		"owner_id", x.req.OwnerID,
		"mode", mode,
		"regenerate", x.req.Regenerate,
		"outcome", outcome,
		"chunks", out.chunks,
		"emission_discarded", out.failed,
		"duration_ms", duration.Milliseconds(),
	)
	return result
}

func (x *Exchange) stream(ctx context.Context, history []llm.Message, out *guardedEmitter) (string, error) {
	r := x.relay
	requested := r.now()

	s, err := r.llm.ChatStream(ctx, history)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var acc strings.Builder
	for {
		increment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return acc.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: read stream: %w", llm.ErrUpstreamUnavailable, err)
		}
		if out.chunks == 0 {
			r.metrics.RecordFirstChunk(r.now().Sub(requested))
		}
		acc.WriteString(increment)
		out.chunks++
		r.metrics.RecordChunk()
		out.emit(Event{Type: EventChunk, Content: increment})
	}
}

func (x *Exchange) batch(ctx context.Context, history []llm.Message, out *guardedEmitter) (string, error) {
	r := x.relay
	requested := r.now()

	content, stats, err := r.llm.Chat(ctx, history)
	if err != nil {
		return "", err
	}
	if stats != nil {
		r.metrics.RecordLLMTokens(r.model, "prompt", stats.PromptTokens)
		r.metrics.RecordLLMTokens(r.model, "completion", stats.CompletionTokens)
	}
	if content != "" {
		r.metrics.RecordFirstChunk(r.now().Sub(requested))
		r.metrics.RecordChunk()
		out.chunks++
		out.emit(Event{Type: EventChunk, Content: content})
	}
	return content, nil
}

// finalize appends the reply, applies the title rule and commits. The
// complete event is only emitted once the commit succeeded.
func (x *Exchange) finalize(ctx context.Context, content string, out *guardedEmitter) *Result {
	r := x.relay
	assistant := store.Message{
		Role:      store.RoleAssistant,
		Content:   content,
		Timestamp: r.timestamp(),
	}

	candidate := x.working.Clone()
	candidate.Messages = append(candidate.Messages, assistant)
	if !x.req.Regenerate {
		applyTitleRule(candidate)
	}

	saved, err := r.commit(ctx, candidate)
	if err != nil {
		return x.fail(ctx, fmt.Errorf("%w: %w", ErrPersistenceFailure, err), out)
	}

	terminal := Event{Type: EventComplete, AssistantMessage: &assistant, ChatTitle: saved.Title}
	out.emit(terminal)
	return &Result{Conversation: saved, Terminal: terminal}
}

// fail records the error notice as the assistant reply and emits the
// error event. It never retries the upstream call.
func (x *Exchange) fail(ctx context.Context, cause error, out *guardedEmitter) *Result {
	r := x.relay
	classification := Classify(cause)

	attrs := []any{
		"conversation_id", x.working.ID,
		"owner_id", x.req.OwnerID,
		"classification", classification,
		"chunks", out.chunks,
	}
	var upstreamErr *llm.UpstreamError
	if errors.As(cause, &upstreamErr) {
		attrs = append(attrs, upstreamErr.LogAttrs()...)
	} else {
		attrs = append(attrs, "error", cause)
	}
	slog.ErrorContext(ctx, "chat: exchange failed", attrs...)

	notice := store.Message{
		Role:      store.RoleAssistant,
		Content:   ErrorNotice,
		Timestamp: r.timestamp(),
	}
	candidate := x.working.Clone()
	candidate.Messages = append(candidate.Messages, notice)
	if !x.req.Regenerate {
		applyTitleRule(candidate)
	}

	saved, err := r.commit(ctx, candidate)
	if err != nil {
		slog.ErrorContext(ctx, "chat: failed to record error notice",
			"conversation_id", x.working.ID,
			"owner_id", x.req.OwnerID,
			"error", err,
		)
		classification = ClassPersistenceFailure
		cause = errors.Join(cause, fmt.Errorf("%w: %w", ErrPersistenceFailure, err))
	}

	r.metrics.RecordError(classification)
	terminal := Event{Type: EventError, Message: &notice, Error: classification}
	out.emit(terminal)
	return &Result{Conversation: saved, Terminal: terminal, Err: cause}
}

// timestamp returns the current time at millisecond precision, the finest
// every driver persists.
func (r *Relay) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// Drain blocks until every running exchange has reached its terminal event,
// or ctx is done. Callers stop admitting exchanges first.
func (r *Relay) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) commit(ctx context.Context, c *store.Conversation) (*store.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()

	saved, err := r.store.SaveConversation(ctx, c)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, ConversationUpdated, saved)
	return saved, nil
}

func (r *Relay) publish(ctx context.Context, kind ConversationEventKind, c *store.Conversation) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, ConversationEvent{Kind: kind, OwnerID: c.OwnerID, Conversation: SummaryOf(c)})
}

// guardedEmitter stops emitting after the first failure; processing goes on.
type guardedEmitter struct {
	emitter        Emitter
	ctx            context.Context
	conversationID string
	failed         bool
	chunks         int
}

func (g *guardedEmitter) emit(event Event) {
	if g.failed || g.emitter == nil {
		return
	}
	if err := g.emitter.Emit(event); err != nil {
		g.failed = true
		slog.InfoContext(g.ctx, "chat: caller went away, continuing without emission",
			"conversation_id", g.conversationID,
			"event", event.Type,
			"error", err,
		)
	}
}
