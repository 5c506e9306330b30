package llm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrUpstreamUnavailable marks a non-success status or a connection failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamMalformed marks a success status whose body has an unexpected shape.
	ErrUpstreamMalformed = errors.New("upstream malformed")
)

// maxCapturedBody bounds the diagnostic body kept from a failed response.
const maxCapturedBody = 4 << 10

// UpstreamError carries provider diagnostics. Body is for operator logs only
// and must never reach an end user.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// LogAttrs returns key-value pairs for slog.
func (e *UpstreamError) LogAttrs() []any {
	return []any{"status_code", e.StatusCode, "body", e.Body, "error", e.Error()}
}

func unavailable(status int, body string, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrUpstreamUnavailable, StatusCode: status, Body: body, Err: err}
}

func malformed(body string, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrUpstreamMalformed, Body: body, Err: err}
}

// classifyClientError maps go-openai failures onto the upstream taxonomy.
func classifyClientError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return unavailable(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return unavailable(reqErr.HTTPStatusCode, "", err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return malformed("", err)
	}
	return unavailable(0, "", err)
}
