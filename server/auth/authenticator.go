package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey int

const (
	// OwnerIDContextKey is the key holding the authenticated owner id.
	OwnerIDContextKey contextKey = iota
	claimsContextKey
)

// Authenticator resolves bearer tokens to owner ids.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator verifying tokens signed with secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	OwnerID string
	Claims  *ClaimsMessage
}

// Authenticate verifies the Authorization header. It returns nil when the
// caller identity is absent or invalid.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) *AuthResult {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return nil
	}
	claims, err := ParseAccessToken(token, a.secret)
	if err != nil {
		slog.DebugContext(ctx, "auth: rejected access token", "error", err)
		return nil
	}
	return &AuthResult{OwnerID: claims.Subject, Claims: claims}
}

// Middleware rejects unauthenticated requests with 401 and stores the owner
// id on the request context otherwise.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			result := a.Authenticate(req.Context(), req.Header.Get(echo.HeaderAuthorization))
			if result == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			ctx := WithOwnerID(req.Context(), result.OwnerID)
			ctx = context.WithValue(ctx, claimsContextKey, result.Claims)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
func ExtractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithOwnerID returns a copy of ctx carrying ownerID.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDContextKey, ownerID)
}

// GetOwnerID returns the authenticated owner id, or "" when there is none.
func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(OwnerIDContextKey).(string)
	return ownerID
}

// GetClaims returns the verified token claims, if any.
func GetClaims(ctx context.Context) *ClaimsMessage {
	claims, _ := ctx.Value(claimsContextKey).(*ClaimsMessage)
	return claims
}
