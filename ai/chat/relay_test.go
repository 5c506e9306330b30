package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinechat/ai/core/llm"
	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/store"
	"github.com/hrygo/divinechat/store/db/sqlite"
)

// fakeLLM scripts upstream behavior and records the histories it was sent.
type fakeLLM struct {
	mu         sync.Mutex
	increments []string
	streamErr  error
	recvErr    error
	batch      string
	batchErr   error
	histories  [][]llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message) (string, *llm.LLMCallStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, messages)
	if f.batchErr != nil {
		return "", nil, f.batchErr
	}
	return f.batch, &llm.LLMCallStats{PromptTokens: 3, CompletionTokens: 1}, nil
}

func (f *fakeLLM) ChatStream(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, messages)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeStream{items: append([]string(nil), f.increments...), err: f.recvErr}, nil
}

func (f *fakeLLM) Warmup(context.Context) {}

func (f *fakeLLM) lastHistory() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[len(f.histories)-1]
}

type fakeStream struct {
	items []string
	err   error
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.items) > 0 {
		item := s.items[0]
		s.items = s.items[1:]
		return item, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

// flakyDriver fails the next n whole-document writes.
type flakyDriver struct {
	store.Driver
	mu       sync.Mutex
	failures int
}

func (d *flakyDriver) ReplaceConversation(ctx context.Context, c *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("disk full")
	}
	d.mu.Unlock()
	return d.Driver.ReplaceConversation(ctx, c)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	failAt int // 1-based; 0 never fails
}

func (r *recorder) Emit(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.events)+1 >= r.failAt {
		return errors.New("client disconnected")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// gatedStream blocks its first Recv until release is closed.
type gatedStream struct {
	release <-chan struct{}
	sent    bool
}

func (s *gatedStream) Recv() (string, error) {
	if s.sent {
		return "", io.EOF
	}
	<-s.release
	s.sent = true
	return "late reply", nil
}

func (s *gatedStream) Close() error { return nil }

type gatedLLM struct {
	fakeLLM
	started chan struct{}
	release chan struct{}
}

func (g *gatedLLM) ChatStream(context.Context, []llm.Message) (llm.Stream, error) {
	close(g.started)
	return &gatedStream{release: g.release}, nil
}

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	driver, err := sqlite.NewDB(&profile.Profile{DSN: filepath.Join(t.TempDir(), "chat.db")})
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))
	t.Cleanup(func() { _ = driver.Close() })
	return driver
}

type fixture struct {
	store *store.Store
	llm   *fakeLLM
	bus   *Bus
	relay *Relay
	flaky *flakyDriver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	flaky := &flakyDriver{Driver: newTestDriver(t)}
	s := store.New(flaky)
	fake := &fakeLLM{}
	bus := NewBus()
	return &fixture{
		store: s,
		llm:   fake,
		bus:   bus,
		relay: NewRelay(s, fake, bus, Config{SystemPrompt: "be helpful", Model: "test"}),
		flaky: flaky,
	}
}

func (f *fixture) conversation(t *testing.T, owner string, messages ...store.Message) *store.Conversation {
	t.Helper()
	ctx := context.Background()
	c, err := f.store.CreateConversation(ctx, owner, DefaultTitle)
	require.NoError(t, err)
	if len(messages) == 0 {
		return c
	}
	c.Messages = messages
	c, err = f.store.SaveConversation(ctx, c)
	require.NoError(t, err)
	return c
}

func (f *fixture) reload(t *testing.T, c *store.Conversation) *store.Conversation {
	t.Helper()
	got, err := f.store.FindOwnedConversation(context.Background(), c.ID, c.OwnerID)
	require.NoError(t, err)
	return got
}

func TestExchangeStreamsAndCommits(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"Recursion ", "is when ", "a function calls itself."}
	c := f.conversation(t, "alice")

	rec := &recorder{}
	result, err := f.relay.Exchange(context.Background(), Request{
		ConversationID: c.ID,
		OwnerID:        "alice",
		Text:           "  Can you help me understand recursion please  ",
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventUserMessage, EventChunk, EventChunk, EventChunk, EventComplete}, rec.types())
	assert.Equal(t, "Can you help me understand recursion please", rec.events[0].Message.Content)
	assert.Equal(t, "is when ", rec.events[2].Content)

	complete := rec.events[4]
	assert.Equal(t, "Recursion is when a function calls itself.", complete.AssistantMessage.Content)
	assert.Equal(t, "Can you help me understand recursion", complete.ChatTitle)
	assert.Equal(t, 3, result.Chunks)
	assert.NoError(t, result.Err)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, store.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, store.RoleAssistant, stored.Messages[1].Role)
	assert.Equal(t, complete.AssistantMessage.Content, stored.Messages[1].Content)
	assert.Equal(t, "Can you help me understand recursion", stored.Title)
	assert.Greater(t, stored.UpdatedTs, c.UpdatedTs)

	history := f.llm.lastHistory()
	require.Len(t, history, 2)
	assert.Equal(t, llm.Message{Role: "system", Content: "be helpful"}, history[0])
}

func TestMessageTimestampsAreMillisecondPrecise(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"ok"}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	f.relay.now = func() time.Time { return clock }
	c := f.conversation(t, "alice")

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, rec)
	require.NoError(t, err)

	want := clock.Truncate(time.Millisecond)
	require.Len(t, rec.events, 3)
	assert.Equal(t, want, rec.events[0].Message.Timestamp)
	assert.Equal(t, want, rec.events[2].AssistantMessage.Timestamp)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.True(t, want.Equal(stored.Messages[0].Timestamp))
	assert.True(t, want.Equal(stored.Messages[1].Timestamp))
}

func TestDrainWaitsForRunningExchanges(t *testing.T) {
	s := store.New(newTestDriver(t))
	gated := &gatedLLM{started: make(chan struct{}), release: make(chan struct{})}
	relay := NewRelay(s, gated, nil, Config{})
	c, err := s.CreateConversation(context.Background(), "alice", DefaultTitle)
	require.NoError(t, err)

	// Nothing running.
	require.NoError(t, relay.Drain(context.Background()))

	results := make(chan *Result, 1)
	go func() {
		result, _ := relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, &recorder{})
		results <- result
	}()
	<-gated.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, relay.Drain(ctx), context.DeadlineExceeded)

	close(gated.release)
	require.NoError(t, relay.Drain(context.Background()))

	result := <-results
	require.NoError(t, result.Err)
	require.NotNil(t, result.Conversation)
	assert.Equal(t, "late reply", result.Conversation.Messages[1].Content)
}

func TestTitleIsSetOnlyOnFirstExchange(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"ok"}
	c := f.conversation(t, "alice")

	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "first question here"}, nil)
	require.NoError(t, err)
	_, err = f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "second question is different"}, nil)
	require.NoError(t, err)

	stored := f.reload(t, c)
	assert.Len(t, stored.Messages, 4)
	assert.Equal(t, "first question here", stored.Title)
}

func TestTitleTruncation(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"ok"}
	c := f.conversation(t, "alice")

	text := "Supercalifragilistic expialidocious antidisestablishmentarianism pneumonoultramicroscopic words here"
	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: text}, rec)
	require.NoError(t, err)

	title := rec.events[len(rec.events)-1].ChatTitle
	assert.Equal(t, 50, len([]rune(title)))
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.Equal(t, DeriveTitle(text), title)
}

func TestFallbackOnEmptyStream(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "alice")

	rec := &recorder{}
	result, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hello"}, rec)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventUserMessage, EventChunk, EventComplete}, rec.types())
	assert.Equal(t, FallbackNotice, rec.events[1].Content)
	assert.Equal(t, FallbackNotice, result.Conversation.Messages[1].Content)
}

func TestUpstreamUnavailableRecordsErrorNotice(t *testing.T) {
	f := newFixture(t)
	f.llm.streamErr = &llm.UpstreamError{Kind: llm.ErrUpstreamUnavailable, StatusCode: 502, Body: "bad gateway"}
	c := f.conversation(t, "alice")

	rec := &recorder{}
	result, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "Can you help me understand recursion please"}, rec)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventUserMessage, EventError}, rec.types())
	terminal := rec.events[1]
	assert.Equal(t, ClassUpstreamUnavailable, terminal.Error)
	assert.Equal(t, ErrorNotice, terminal.Message.Content)
	assert.NotContains(t, terminal.Message.Content, "bad gateway")
	assert.ErrorIs(t, result.Err, llm.ErrUpstreamUnavailable)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, ErrorNotice, stored.Messages[1].Content)
	assert.Equal(t, "Can you help me understand recursion", stored.Title)
}

func TestMidStreamFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"partial "}
	f.llm.recvErr = errors.New("connection reset")
	c := f.conversation(t, "alice")

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, rec)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventUserMessage, EventChunk, EventError}, rec.types())
	assert.Equal(t, ClassUpstreamUnavailable, rec.events[2].Error)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, ErrorNotice, stored.Messages[1].Content)
}

func TestBatchMode(t *testing.T) {
	f := newFixture(t)
	f.llm.batch = "4"
	c := f.conversation(t, "alice")

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "2+2?", Batch: true}, rec)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventUserMessage, EventChunk, EventComplete}, rec.types())
	assert.Equal(t, "4", rec.events[2].AssistantMessage.Content)

	f.llm.batchErr = &llm.UpstreamError{Kind: llm.ErrUpstreamMalformed}
	rec = &recorder{}
	_, err = f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "again", Batch: true}, rec)
	require.NoError(t, err)
	assert.Equal(t, ClassUpstreamMalformed, rec.events[len(rec.events)-1].Error)
}

func TestPersistenceFailure(t *testing.T) {
	t.Run("reply commit fails, notice is recorded", func(t *testing.T) {
		f := newFixture(t)
		f.llm.increments = []string{"streamed"}
		c := f.conversation(t, "alice")
		f.flaky.failures = 1

		rec := &recorder{}
		result, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, rec)
		require.NoError(t, err)

		assert.Equal(t, []EventType{EventUserMessage, EventChunk, EventError}, rec.types())
		assert.Equal(t, ClassPersistenceFailure, rec.events[2].Error)
		assert.ErrorIs(t, result.Err, ErrPersistenceFailure)

		stored := f.reload(t, c)
		require.Len(t, stored.Messages, 2)
		assert.Equal(t, ErrorNotice, stored.Messages[1].Content)
	})

	t.Run("every commit fails", func(t *testing.T) {
		f := newFixture(t)
		f.llm.increments = []string{"streamed"}
		c := f.conversation(t, "alice")
		f.flaky.failures = 2

		rec := &recorder{}
		result, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, rec)
		require.NoError(t, err)

		assert.Equal(t, EventError, rec.events[len(rec.events)-1].Type)
		assert.Equal(t, ClassPersistenceFailure, rec.events[len(rec.events)-1].Error)
		assert.Nil(t, result.Conversation)
		assert.Empty(t, f.reload(t, c).Messages)
	})
}

func TestRejectionsHaveNoSideEffects(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "alice")

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "   "}, rec)
	assert.True(t, IsValidationError(err))

	_, err = f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "mallory", Text: "hi"}, rec)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.relay.Exchange(context.Background(), Request{ConversationID: "missing", OwnerID: "alice", Text: "hi"}, rec)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, rec.events)
	assert.Empty(t, f.llm.histories)
	assert.Empty(t, f.reload(t, c).Messages)
}

func TestAttachmentsOnlyMessage(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"nice photo"}
	c := f.conversation(t, "alice")

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{
		ConversationID: c.ID,
		OwnerID:        "alice",
		Attachments:    []store.Attachment{{Name: "cat.png", MediaType: "image/png"}},
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, "cat.png", rec.events[0].Message.Attachments[0].Name)
	assert.Equal(t, "", f.reload(t, c).Messages[0].Content)
	assert.Contains(t, f.llm.lastHistory()[1].Content, "cat.png (image/png)")
	assert.Equal(t, DefaultTitle, f.reload(t, c).Title)
}

func TestRegenerateReplacesTrailingReply(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "alice",
		store.Message{Role: store.RoleUser, Content: "2+2?"},
		store.Message{Role: store.RoleAssistant, Content: "4"},
	)
	f.llm.increments = []string{"Four."}

	rec := &recorder{}
	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Regenerate: true}, rec)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventChunk, EventComplete}, rec.types())

	history := f.llm.lastHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "2+2?", history[1].Content)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "Four.", stored.Messages[1].Content)
	assert.Equal(t, DefaultTitle, stored.Title)
}

func TestRegenerateRequiresUserTail(t *testing.T) {
	f := newFixture(t)
	empty := f.conversation(t, "alice")
	_, err := f.relay.Prepare(context.Background(), Request{ConversationID: empty.ID, OwnerID: "alice", Regenerate: true})
	assert.True(t, IsValidationError(err))

	odd := f.conversation(t, "alice",
		store.Message{Role: store.RoleAssistant, Content: "a"},
		store.Message{Role: store.RoleAssistant, Content: "b"},
	)
	_, err = f.relay.Prepare(context.Background(), Request{ConversationID: odd.ID, OwnerID: "alice", Regenerate: true})
	assert.True(t, IsValidationError(err))
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	c := f.conversation(t, "alice",
		store.Message{Role: store.RoleUser, Content: "2+2?"},
		store.Message{Role: store.RoleAssistant, Content: "4"},
		store.Message{Role: store.RoleUser, Content: "3+3?"},
		store.Message{Role: store.RoleAssistant, Content: "6"},
	)
	ctx := context.Background()

	_, err := f.relay.PrepareEdit(ctx, EditRequest{ConversationID: c.ID, OwnerID: "alice", Index: 1, Text: "x"})
	assert.True(t, IsValidationError(err))

	_, err = f.relay.PrepareEdit(ctx, EditRequest{ConversationID: c.ID, OwnerID: "alice", Index: 9, Text: "x"})
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = f.relay.PrepareEdit(ctx, EditRequest{ConversationID: c.ID, OwnerID: "alice", Index: 0, Text: " "})
	assert.True(t, IsValidationError(err))

	_, err = f.relay.PrepareEdit(ctx, EditRequest{ConversationID: c.ID, OwnerID: "bob", Index: 0, Text: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	f.llm.increments = []string{"5"}
	x, err := f.relay.PrepareEdit(ctx, EditRequest{ConversationID: c.ID, OwnerID: "alice", Index: 2, Text: "2+3?"})
	require.NoError(t, err)

	truncated := f.reload(t, c)
	require.Len(t, truncated.Messages, 3)
	assert.Equal(t, "2+3?", truncated.Messages[2].Content)

	rec := &recorder{}
	result := x.Run(ctx, rec)
	assert.Equal(t, []EventType{EventChunk, EventComplete}, rec.types())
	require.Len(t, result.Conversation.Messages, 4)
	assert.Equal(t, "5", result.Conversation.Messages[3].Content)
	assert.Equal(t, "2+3?", f.llm.lastHistory()[3].Content)
}

func TestEmissionFailureStillCommits(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"a", "b"}
	c := f.conversation(t, "alice")

	rec := &recorder{failAt: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hi"}, rec)
	require.NoError(t, err)
	assert.Len(t, rec.events, 1)
	assert.Equal(t, EventComplete, result.Terminal.Type)

	stored := f.reload(t, c)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "ab", stored.Messages[1].Content)

	// A cancelled caller context does not abort the exchange either.
	x, err := f.relay.Prepare(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "again"})
	require.NoError(t, err)
	result = x.Run(ctx, nil)
	assert.Equal(t, EventComplete, result.Terminal.Type)
	assert.Len(t, f.reload(t, c).Messages, 4)
}

func TestRelayPublishesUpdates(t *testing.T) {
	f := newFixture(t)
	f.llm.increments = []string{"ok"}
	c := f.conversation(t, "alice")

	events, cancel := f.bus.Subscribe("alice")
	defer cancel()
	others, cancelOthers := f.bus.Subscribe("bob")
	defer cancelOthers()

	_, err := f.relay.Exchange(context.Background(), Request{ConversationID: c.ID, OwnerID: "alice", Text: "hello world"}, nil)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, ConversationUpdated, ev.Kind)
		assert.Equal(t, c.ID, ev.Conversation.ID)
		assert.Equal(t, "hello world", ev.Conversation.Title)
	default:
		t.Fatal("expected an updated event")
	}
	assert.Empty(t, others)
}

func TestEventShapes(t *testing.T) {
	msg := &store.Message{Role: store.RoleAssistant, Content: "hi"}

	tests := []struct {
		event Event
		keys  []string
	}{
		{Event{Type: EventUserMessage, Message: &store.Message{Role: store.RoleUser}}, []string{"message", "type"}},
		{Event{Type: EventChunk, Content: "x"}, []string{"content", "type"}},
		{Event{Type: EventComplete, AssistantMessage: msg}, []string{"assistantMessage", "chatTitle", "type"}},
		{Event{Type: EventError, Message: msg, Error: ClassInternal}, []string{"error", "message", "type"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.event.Type), func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)

			var fields map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &fields))
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.keys, keys)

			var back Event
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.event.Type, back.Type)
		})
	}

	data, err := json.Marshal(Event{Type: EventComplete, AssistantMessage: msg})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chatTitle":""`)
	assert.NotContains(t, string(data), "attachments")

	_, err = json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassUpstreamUnavailable, Classify(&llm.UpstreamError{Kind: llm.ErrUpstreamUnavailable}))
	assert.Equal(t, ClassUpstreamMalformed, Classify(&llm.UpstreamError{Kind: llm.ErrUpstreamMalformed}))
	assert.Equal(t, ClassPersistenceFailure, Classify(errors.Join(errors.New("x"), ErrPersistenceFailure)))
	assert.Equal(t, ClassInternal, Classify(errors.New("boom")))
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Can you help me understand recursion", DeriveTitle("Can you help me understand recursion please"))
	assert.Equal(t, "short", DeriveTitle("  short  "))
	assert.Equal(t, "", DeriveTitle(""))
	long := DeriveTitle(strings.Repeat("abcdefghij", 6))
	assert.Equal(t, strings.Repeat("abcdefghij", 4)+"abcdefg...", long)
}
