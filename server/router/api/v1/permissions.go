package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/server/auth"
)

// requireOwner returns the authenticated owner id of the request.
func requireOwner(c echo.Context) (string, error) {
	ownerID := auth.GetOwnerID(c.Request().Context())
	if ownerID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return ownerID, nil
}

// toHTTPError maps relay and store errors onto status codes. Unexpected
// failures are logged by the request logger through SetInternal and never
// leak to the caller.
func toHTTPError(err error) error {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case chat.IsValidationError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrMessageNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
