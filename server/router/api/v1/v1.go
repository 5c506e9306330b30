package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/ai/metrics"
	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/server/auth"
	"github.com/hrygo/divinechat/store"
)

// exchangeBurst is the per-owner token bucket size.
const exchangeBurst = 5

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Relay   *chat.Relay
	Bus     *chat.Bus
	// Metrics may be nil.
	Metrics *metrics.PrometheusExporter
	Secret  string

	exchangeSemaphore *semaphore.Weighted
	limiters          *ownerLimiters
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, relay *chat.Relay, bus *chat.Bus, exporter *metrics.PrometheusExporter) *APIV1Service {
	maxConcurrent := int64(profile.MaxConcurrentExchanges)
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &APIV1Service{
		Profile:           profile,
		Store:             store,
		Relay:             relay,
		Bus:               bus,
		Metrics:           exporter,
		Secret:            secret,
		exchangeSemaphore: semaphore.NewWeighted(maxConcurrent),
		limiters:          newOwnerLimiters(profile.ExchangeRatePerMinute, exchangeBurst),
	}
}

// RegisterRoutes registers the REST and event-stream handlers under /api/v1.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	allowOrigins := s.Profile.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	// Registered on the root so preflight requests, which match no route, are answered.
	// Identity travels in the Authorization header, never in cookies.
	echoServer.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/api/v1/")
		},
		AllowOrigins:  allowOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders: []string{HeaderConversationID},
	}))
	authenticator := auth.NewAuthenticator(s.Secret)

	apiGroup := echoServer.Group("/api/v1", authenticator.Middleware())

	apiGroup.POST("/conversations", s.CreateConversation)
	apiGroup.GET("/conversations", s.ListConversations)
	apiGroup.GET("/conversations/events", s.StreamConversationEvents)
	apiGroup.GET("/conversations/:id", s.GetConversation)
	apiGroup.PATCH("/conversations/:id", s.RenameConversation)
	apiGroup.DELETE("/conversations/:id", s.DeleteConversation)
	apiGroup.GET("/conversations/:id/export", s.ExportConversation)

	apiGroup.POST("/exchange", s.ExchangeNew)
	apiGroup.POST("/conversations/:id/exchange", s.Exchange)
	apiGroup.POST("/conversations/:id/messages/:index/edit", s.EditMessage)
}

func (s *APIV1Service) recordRejection(reason string) {
	if s.Metrics != nil {
		s.Metrics.RecordRejection(reason)
	}
}
