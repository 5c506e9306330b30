package chat

import (
	"github.com/hrygo/divinechat/ai/internal/strutil"
	"github.com/hrygo/divinechat/store"
)

const (
	// DefaultTitle names conversations created without a caller-supplied title.
	DefaultTitle = "New Chat"

	titleWords    = 6
	titleMaxRunes = 50
)

// DeriveTitle takes the first six words of text and fits them in 50 runes.
func DeriveTitle(text string) string {
	return strutil.FitWithEllipsis(strutil.FirstWords(text, titleWords), titleMaxRunes)
}

// applyTitleRule sets the title when the conversation has just reached its
// second message. An empty derivation keeps the current title.
func applyTitleRule(c *store.Conversation) {
	if len(c.Messages) != 2 {
		return
	}
	for _, m := range c.Messages {
		if m.Role != store.RoleUser {
			continue
		}
		if title := DeriveTitle(m.Content); title != "" {
			c.Title = title
		}
		return
	}
}
