package chat

import (
	"errors"
	"fmt"

	"github.com/hrygo/divinechat/ai/core/llm"
	"github.com/hrygo/divinechat/store"
)

// Classifications carried by the error event.
const (
	ClassUpstreamUnavailable = "upstream_unavailable"
	ClassUpstreamMalformed   = "upstream_malformed"
	ClassPersistenceFailure  = "persistence_failure"
	ClassInternal            = "internal"
)

var (
	// ErrNotFound is returned when the conversation is missing or owned by someone else.
	ErrNotFound = store.ErrNotFound
	// ErrMessageNotFound is returned when an edit addresses a message index out of range.
	ErrMessageNotFound = errors.New("message not found")
	// ErrPersistenceFailure wraps a failed commit after a reply was computed.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// ValidationError is bad caller input, rejected before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Classify maps a relay failure onto the opaque classification string.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrPersistenceFailure):
		return ClassPersistenceFailure
	case errors.Is(err, llm.ErrUpstreamMalformed):
		return ClassUpstreamMalformed
	case errors.Is(err, llm.ErrUpstreamUnavailable):
		return ClassUpstreamUnavailable
	default:
		return ClassInternal
	}
}
