package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/tidwall/gjson"
)

// ChatStream posts a streamed completion request and hands the body to a Decoder.
// It talks to the provider directly rather than through go-openai's stream
// reader, which aborts the whole stream on the first undecodable record.
func (s *service) ChatStream(ctx context.Context, messages []Message) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	body, err := json.Marshal(s.request(messages, true))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	slog.Debug("LLM ChatStream starting", "model", s.model, "messages", len(messages))
	resp, err := s.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, unavailable(0, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		captured, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
		_ = resp.Body.Close()
		cancel()
		return nil, unavailable(resp.StatusCode, string(captured), nil)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		// Some providers ignore stream:true and answer with a whole completion.
		defer cancel()
		defer resp.Body.Close()
		return wholeCompletion(resp.Body)
	}

	return &httpStream{
		decoder: NewDecoder(resp.Body),
		body:    resp.Body,
		cancel:  cancel,
	}, nil
}

func wholeCompletion(r io.Reader) (Stream, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 8<<20))
	if err != nil {
		return nil, unavailable(0, "", err)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !gjson.ValidBytes(raw) || content.Type != gjson.String {
		captured := raw
		if len(captured) > maxCapturedBody {
			captured = captured[:maxCapturedBody]
		}
		return nil, malformed(string(captured), fmt.Errorf("unexpected completion shape"))
	}
	return &sliceStream{items: []string{content.Str}}, nil
}

type httpStream struct {
	decoder *Decoder
	body    io.ReadCloser
	cancel  context.CancelFunc
}

func (s *httpStream) Recv() (string, error) {
	return s.decoder.Next()
}

func (s *httpStream) Close() error {
	defer s.cancel()
	if skipped := s.decoder.Skipped(); skipped > 0 {
		slog.Warn("LLM ChatStream skipped malformed records", "count", skipped)
	}
	return s.body.Close()
}

// sliceStream replays fixed increments.
type sliceStream struct {
	items []string
}

func (s *sliceStream) Recv() (string, error) {
	for len(s.items) > 0 {
		item := s.items[0]
		s.items = s.items[1:]
		if item != "" {
			return item, nil
		}
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error { return nil }

// NewStaticStream returns a Stream that yields the given increments in order.
func NewStaticStream(items ...string) Stream {
	return &sliceStream{items: items}
}
