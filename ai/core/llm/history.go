package llm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hrygo/divinechat/ai/internal/strutil"
	"github.com/hrygo/divinechat/store"
)

// maxAttachmentRunes bounds the decoded text of one attachment sent upstream.
const maxAttachmentRunes = 20000

// BuildHistory maps a conversation onto the upstream call: one system record,
// then every persisted message in order. A user message with attachments is
// sent with a description block appended; the stored content is not changed.
func BuildHistory(systemPrompt string, messages []store.Message) []Message {
	history := make([]Message, 0, len(messages)+1)
	history = append(history, SystemPrompt(systemPrompt))
	for _, m := range messages {
		switch m.Role {
		case store.RoleAssistant:
			history = append(history, AssistantMessage(m.Content))
		default:
			history = append(history, UserMessage(augment(m)))
		}
	}
	return history
}

func augment(m store.Message) string {
	if len(m.Attachments) == 0 {
		return m.Content
	}

	var sb strings.Builder
	sb.WriteString(m.Content)
	if m.Content != "" {
		sb.WriteString("\n\n")
	}
	sb.WriteString("[Attached files]")
	for _, a := range m.Attachments {
		sb.WriteString("\n")
		if text, ok := plainText(a); ok {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n--- end of %s ---", a.Name, text, a.Name)
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s)", a.Name, mediaTypeOrUnknown(a.MediaType))
	}
	return sb.String()
}

// plainText decodes an inline text attachment. Anything else is described by
// name and media type only.
func plainText(a store.Attachment) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(a.MediaType), "text/") || a.Data == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return "", false
	}
	return strutil.Truncate(string(decoded), maxAttachmentRunes), true
}

func mediaTypeOrUnknown(mediaType string) string {
	if mediaType == "" {
		return "application/octet-stream"
	}
	return mediaType
}
