package v1

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/divinechat/store"
)

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// ExportConversation handles GET /conversations/{id}/export?format=markdown|html.
func (s *APIV1Service) ExportConversation(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	format, err := validateExportFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conversation, err := s.Store.FindOwnedConversation(c.Request().Context(), c.Param("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	md := renderMarkdown(conversation)
	if format == "markdown" {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", conversation.ID+".md"))
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
	}

	page, err := renderHTML(conversation.Title, md)
	if err != nil {
		return toHTTPError(err)
	}
	return c.HTMLBlob(http.StatusOK, page)
}

// renderMarkdown renders a transcript with one section per message.
func renderMarkdown(c *store.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	for _, m := range c.Messages {
		heading := "User"
		if m.Role == store.RoleAssistant {
			heading = "Assistant"
		}
		fmt.Fprintf(&b, "## %s\n\n", heading)
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, "_%s_\n\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
		}
		if content := strings.TrimSpace(m.Content); content != "" {
			b.WriteString(content)
			b.WriteString("\n\n")
		}
		if len(m.Attachments) > 0 {
			b.WriteString("Attachments:\n\n")
			for _, a := range m.Attachments {
				fmt.Fprintf(&b, "- %s\n", a.Name)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderHTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownRenderer.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
