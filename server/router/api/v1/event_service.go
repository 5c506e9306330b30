package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/divinechat/internal/sse"
)

const eventKeepAliveInterval = 15 * time.Second

// StreamConversationEvents handles GET /conversations/events. It streams the
// caller's conversation list changes until the caller goes away.
func (s *APIV1Service) StreamConversationEvents(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	if s.Bus == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation events are disabled")
	}

	events, cancel := s.Bus.Subscribe(ownerID)
	defer cancel()

	resp := c.Response()
	sse.SetHeaders(resp.Header())
	resp.WriteHeader(http.StatusOK)
	resp.Flush()
	writer := sse.NewWriter(resp)

	ticker := time.NewTicker(eventKeepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := writer.WriteJSON(event); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := writer.WriteComment("keep-alive"); err != nil {
				return nil
			}
		}
	}
}
