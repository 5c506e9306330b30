package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/internal/sse"
)

// HeaderConversationID carries the id of a conversation created by POST /exchange.
const HeaderConversationID = "X-Conversation-Id"

// Exchange handles POST /conversations/{id}/exchange.
func (s *APIV1Service) Exchange(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	request := &ExchangeRequest{}
	if err := c.Bind(request); err != nil {
		return err
	}

	x, err := s.Relay.Prepare(c.Request().Context(), chat.Request{
		ConversationID: c.Param("id"),
		OwnerID:        ownerID,
		Text:           request.Text,
		Attachments:    request.Attachments,
		Regenerate:     request.Regenerate,
		Batch:          request.Batch,
	})
	if err != nil {
		return toHTTPError(err)
	}

	release, err := s.admit(c, ownerID)
	if err != nil {
		return err
	}
	defer release()

	return s.streamExchange(c, x)
}

// ExchangeNew handles POST /exchange: it creates a conversation for the
// caller and drives the first exchange against it.
func (s *APIV1Service) ExchangeNew(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	request := &ExchangeRequest{}
	if err := c.Bind(request); err != nil {
		return err
	}
	if request.Regenerate {
		return echo.NewHTTPError(http.StatusBadRequest, "regenerate requires an existing conversation")
	}
	req := chat.Request{
		OwnerID:     ownerID,
		Text:        request.Text,
		Attachments: request.Attachments,
		Batch:       request.Batch,
	}
	if err := chat.ValidateRequest(req); err != nil {
		return toHTTPError(err)
	}

	release, err := s.admit(c, ownerID)
	if err != nil {
		return err
	}
	defer release()

	ctx := c.Request().Context()
	conversation, err := s.Store.CreateConversation(ctx, ownerID, chat.DefaultTitle)
	if err != nil {
		return toHTTPError(err)
	}
	s.publish(c, chat.ConversationCreated, conversation)

	req.ConversationID = conversation.ID
	x, err := s.Relay.Prepare(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}
	c.Response().Header().Set(HeaderConversationID, conversation.ID)
	return s.streamExchange(c, x)
}

// EditMessage handles POST /conversations/{id}/messages/{index}/edit.
func (s *APIV1Service) EditMessage(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}
	request := &EditMessageRequest{}
	if err := c.Bind(request); err != nil {
		return err
	}
	if strings.TrimSpace(request.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	release, err := s.admit(c, ownerID)
	if err != nil {
		return err
	}
	defer release()

	x, err := s.Relay.PrepareEdit(c.Request().Context(), chat.EditRequest{
		ConversationID: c.Param("id"),
		OwnerID:        ownerID,
		Index:          index,
		Text:           request.Text,
		Batch:          request.Batch,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return s.streamExchange(c, x)
}

// streamExchange commits the response to an event stream and runs the
// exchange to its terminal event. The run outlives the caller.
func (s *APIV1Service) streamExchange(c echo.Context, x *chat.Exchange) error {
	resp := c.Response()
	sse.SetHeaders(resp.Header())
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	writer := sse.NewWriter(resp)
	emitter := chat.EmitterFunc(func(event chat.Event) error {
		return writer.WriteJSON(event)
	})

	x.Run(c.Request().Context(), emitter)
	return nil
}
