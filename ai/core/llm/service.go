package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message sent upstream.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMCallStats represents statistics for a single batch call.
type LLMCallStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// CacheReadTokens is the number of tokens read from cache (for providers that support it).
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Service is the upstream completion client.
type Service interface {
	// Chat performs a single-shot completion.
	Chat(ctx context.Context, messages []Message) (string, *LLMCallStats, error)

	// ChatStream opens a token-streamed completion. A returned error means the
	// provider call failed before any content was read.
	ChatStream(ctx context.Context, messages []Message) (Stream, error)

	// Warmup sends a lightweight ping request to establish and warm up the connection.
	Warmup(ctx context.Context)
}

// Stream is a finite lazy sequence of content increments.
type Stream interface {
	// Recv returns the next non-empty increment, or io.EOF once the upstream
	// terminates. Other errors are I/O failures on the underlying connection.
	Recv() (string, error)
	Close() error
}

// Config represents upstream client configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // Request timeout in seconds (default: 120)
}

var defaultBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
}

type service struct {
	client       *openai.Client
	streamClient *http.Client
	baseURL      string
	apiKey       string
	model        string
	provider     string
	maxTokens    int
	temperature  float32
	timeout      time.Duration
}

// NewService creates a new upstream Service.
func NewService(cfg *Config) (Service, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no base url for provider %q", cfg.Provider)
	}
	if _, ok := defaultBaseURLs[cfg.Provider]; !ok {
		slog.Info("Using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}

	// Set default timeout if not configured
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	baseURL = strings.TrimRight(baseURL, "/")
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient(time.Duration(timeout) * time.Second)

	return &service{
		client: openai.NewClientWithConfig(clientConfig),
		// Streams outlive any fixed client timeout; the request context bounds them.
		streamClient: newHTTPClient(0),
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		provider:     cfg.Provider,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		timeout:      time.Duration(timeout) * time.Second,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, *LLMCallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slog.Debug("LLM: Chat request",
		"model", s.model,
		"messages_count", len(messages),
		"max_tokens", s.maxTokens,
	)

	startTime := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, s.request(messages, false))
	if err != nil {
		return "", nil, classifyClientError(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil, malformed("", fmt.Errorf("response has no choices"))
	}

	totalDuration := time.Since(startTime)
	stats := &LLMCallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}
	if resp.Usage.PromptTokensDetails != nil && resp.Usage.PromptTokensDetails.CachedTokens > 0 {
		stats.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	slog.Debug("LLM: Chat response received",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)

	return resp.Choices[0].Message.Content, stats, nil
}

func (s *service) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
		Stream:      stream,
	}
}

func (s *service) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("LLM: starting connection warmup",
		"provider", s.provider,
		"model", s.model,
	)

	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}

	_, err := s.client.CreateChatCompletion(warmupCtx, req)

	duration := time.Since(startTime)

	if err != nil {
		slog.Warn("LLM: warmup ping failed (service will still work, first request may be slower)",
			"provider", s.provider,
			"model", s.model,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}

	slog.Info("LLM: connection warmed up successfully",
		"provider", s.provider,
		"model", s.model,
		"duration_ms", duration.Milliseconds(),
	)
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		llmMessages[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return llmMessages
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}
}

// Helper for creating system prompts.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
