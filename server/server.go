package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/ai/metrics"
	"github.com/hrygo/divinechat/internal/profile"
	apiv1 "github.com/hrygo/divinechat/server/router/api/v1"
	"github.com/hrygo/divinechat/store"
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	relay      *chat.Relay
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, relay *chat.Relay, bus *chat.Bus, exporter *metrics.PrometheusExporter) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
		Secret:  profile.Secret,
		relay:   relay,
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	echoServer.Use(newRequestLogger())
	s.echoServer = echoServer

	// Healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": profile.Version,
		})
	})
	if exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiV1Service := apiv1.NewAPIV1Service(s.Secret, profile, store, relay, bus, exporter)
	apiV1Service.RegisterRoutes(echoServer)

	slog.DebugContext(ctx, "server routes registered", "routes", len(echoServer.Routes()))
	return s, nil
}

// Start serves until Shutdown is called. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	var address, network string
	if len(s.Profile.UNIXSock) == 0 {
		address = fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
		network = "tcp"
	} else {
		address = s.Profile.UNIXSock
		network = "unix"
	}
	listener, err := (&net.ListenConfig{}).Listen(ctx, network, address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	// Exchanges stream for as long as the upstream takes, so there is no write timeout.
	s.echoServer.Server.ReadHeaderTimeout = 10 * time.Second
	s.echoServer.Server.IdleTimeout = 120 * time.Second
	s.echoServer.Listener = listener

	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start echo server")
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight exchanges to commit,
// then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	slog.Info("server shutting down")

	// Shutdown echo server.
	httpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.echoServer.Shutdown(httpCtx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	// Exchanges outlive their requests; a run can take the whole upstream timeout plus a commit.
	if s.relay != nil {
		drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout())
		defer cancel()
		if err := s.relay.Drain(drainCtx); err != nil {
			slog.Error("exchanges still running at shutdown", slog.String("error", err.Error()))
		}
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("server stopped properly")
}

func (s *Server) drainTimeout() time.Duration {
	timeout := time.Duration(s.Profile.LLMTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return timeout + 30*time.Second
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echoServer.ServeHTTP(w, r)
}

func newRequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				var httpErr *echo.HTTPError
				if errors.As(v.Error, &httpErr) && httpErr.Internal != nil {
					attrs = append(attrs, slog.String("internal", httpErr.Internal.Error()))
				}
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			slog.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}
