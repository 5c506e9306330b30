package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/store"
)

// CreateConversation handles POST /conversations.
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	request := &CreateConversationRequest{}
	if err := c.Bind(request); err != nil {
		return err
	}
	title, err := validateTitle(request.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	conversation, err := s.Store.CreateConversation(ctx, ownerID, title)
	if err != nil {
		return toHTTPError(err)
	}
	s.publish(c, chat.ConversationCreated, conversation)
	return c.JSON(http.StatusCreated, convertConversationFromStore(conversation))
}

// ListConversations handles GET /conversations.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	limit := store.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	list, err := s.Store.ListOwnedConversations(c.Request().Context(), ownerID, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, convertSummariesFromStore(list))
}

// GetConversation handles GET /conversations/{id}.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	conversation, err := s.Store.FindOwnedConversation(c.Request().Context(), c.Param("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, convertConversationFromStore(conversation))
}

// RenameConversation handles PATCH /conversations/{id}.
func (s *APIV1Service) RenameConversation(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	request := &RenameConversationRequest{}
	if err := c.Bind(request); err != nil {
		return err
	}
	title, err := validateTitle(request.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conversation, err := s.Store.RenameConversation(c.Request().Context(), c.Param("id"), ownerID, title)
	if err != nil {
		return toHTTPError(err)
	}
	s.publish(c, chat.ConversationUpdated, conversation)
	return c.JSON(http.StatusOK, chat.SummaryOf(conversation))
}

// DeleteConversation handles DELETE /conversations/{id}.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	ownerID, err := requireOwner(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	conversation, err := s.Store.FindOwnedConversation(ctx, id, ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	deleted, err := s.Store.DeleteOwnedConversation(ctx, id, ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	if !deleted {
		return toHTTPError(chat.ErrNotFound)
	}
	slog.InfoContext(ctx, "conversation deleted", "conversation_id", id, "owner_id", ownerID)
	s.publish(c, chat.ConversationDeleted, conversation)
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) publish(c echo.Context, kind chat.ConversationEventKind, conversation *store.Conversation) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(c.Request().Context(), chat.ConversationEvent{
		Kind:         kind,
		OwnerID:      conversation.OwnerID,
		Conversation: chat.SummaryOf(conversation),
	})
}
