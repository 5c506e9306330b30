package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/internal/sse"
	apiv1 "github.com/hrygo/divinechat/server/router/api/v1"
	"github.com/hrygo/divinechat/store"
)

// APIError is a non-success response of the HTTP surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a divinechat server with a bearer token.
type Client struct {
	serverURL  string
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. A nil httpClient uses one without a timeout, since
// exchanges stream for as long as the upstream takes.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	serverURL := strings.TrimRight(baseURL, "/")
	return &Client{
		serverURL:  serverURL,
		baseURL:    serverURL + "/api/v1",
		token:      token,
		httpClient: httpClient,
	}
}

// Health is the body of GET /healthz.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health fetches the server status and version. It needs no token.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	health := &Health{}
	if err := json.NewDecoder(resp.Body).Decode(health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return health, nil
}

// Create creates an empty conversation.
func (c *Client) Create(ctx context.Context, title string) (*apiv1.Conversation, error) {
	conversation := &apiv1.Conversation{}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", apiv1.CreateConversationRequest{Title: title}, conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Get fetches a conversation with its messages.
func (c *Client) Get(ctx context.Context, id string) (*apiv1.Conversation, error) {
	conversation := &apiv1.Conversation{}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// List returns the caller's conversations, most recent first.
func (c *Client) List(ctx context.Context) ([]chat.Summary, error) {
	var list []chat.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Rename sets a conversation title.
func (c *Client) Rename(ctx context.Context, id, title string) (*chat.Summary, error) {
	summary := &chat.Summary{}
	if err := c.doJSON(ctx, http.MethodPatch, "/conversations/"+url.PathEscape(id), apiv1.RenameConversationRequest{Title: title}, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// Delete deletes a conversation.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

// ExchangeOptions tunes one exchange.
type ExchangeOptions struct {
	Attachments []store.Attachment
	Batch       bool
	// OnEvent observes every event after it has been reduced.
	OnEvent func(chat.Event)
}

// Exchange sends text on the reducer's conversation and reduces the reply
// stream. A reducer without a conversation id creates one on the server.
func (c *Client) Exchange(ctx context.Context, r *Reducer, text string, opts ExchangeOptions) error {
	if err := r.Begin(text, opts.Attachments); err != nil {
		return err
	}
	path := "/exchange"
	if id := r.State().ConversationID; id != "" {
		path = "/conversations/" + url.PathEscape(id) + "/exchange"
	}
	body := apiv1.ExchangeRequest{Text: text, Attachments: opts.Attachments, Batch: opts.Batch}
	return c.stream(ctx, r, path, body, opts.OnEvent)
}

// Regenerate replaces the trailing assistant reply.
func (c *Client) Regenerate(ctx context.Context, r *Reducer, opts ExchangeOptions) error {
	id := r.State().ConversationID
	if id == "" {
		return fmt.Errorf("regenerate requires an existing conversation")
	}
	if err := r.BeginRegenerate(); err != nil {
		return err
	}
	body := apiv1.ExchangeRequest{Regenerate: true, Batch: opts.Batch}
	return c.stream(ctx, r, "/conversations/"+url.PathEscape(id)+"/exchange", body, opts.OnEvent)
}

// Edit replaces the user message at index and regenerates from it.
func (c *Client) Edit(ctx context.Context, r *Reducer, index int, text string, opts ExchangeOptions) error {
	id := r.State().ConversationID
	if id == "" {
		return fmt.Errorf("edit requires an existing conversation")
	}
	if err := r.BeginEdit(index, text); err != nil {
		return err
	}
	path := "/conversations/" + url.PathEscape(id) + "/messages/" + strconv.Itoa(index) + "/edit"
	return c.stream(ctx, r, path, apiv1.EditMessageRequest{Text: text, Batch: opts.Batch}, opts.OnEvent)
}

// Events streams the caller's conversation list changes until ctx is done
// or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(chat.ConversationEvent) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversations/events", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	reader := sse.NewReader(resp.Body)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		event := chat.ConversationEvent{}
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// stream posts body and reduces the event stream. Any failure before a
// terminal event is handed to the reducer as a transport failure.
func (c *Client) stream(ctx context.Context, r *Reducer, path string, body any, onEvent func(chat.Event)) error {
	terminal, err := c.readExchange(ctx, r, path, body, onEvent)
	if err != nil {
		r.Fail(err)
		return err
	}
	if !terminal {
		err := io.ErrUnexpectedEOF
		r.Fail(err)
		return fmt.Errorf("event stream ended before a terminal event: %w", err)
	}
	return nil
}

func (c *Client) readExchange(ctx context.Context, r *Reducer, path string, body any, onEvent func(chat.Event)) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}
	if id := resp.Header.Get(apiv1.HeaderConversationID); id != "" {
		r.SetConversationID(id)
	}

	reader := sse.NewReader(resp.Body)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		event := chat.Event{}
		if err := json.Unmarshal(payload, &event); err != nil {
			return false, fmt.Errorf("decode event: %w", err)
		}
		if err := r.Apply(event); err != nil {
			return false, err
		}
		if onEvent != nil {
			onEvent(event)
		}
		if event.IsTerminal() {
			return true, nil
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}
