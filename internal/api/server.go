// Package api exposes the remote-download client over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/slipstream/homecloud/internal/api/handlers"
	apimw "github.com/slipstream/homecloud/internal/api/middleware"
	"github.com/slipstream/homecloud/internal/api/ratelimit"
	"github.com/slipstream/homecloud/internal/auth"
	"github.com/slipstream/homecloud/internal/config"
	"github.com/slipstream/homecloud/internal/health"
	"github.com/slipstream/homecloud/internal/history"
	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/remote/types"
	"github.com/slipstream/homecloud/internal/websocket"
)

// ProgressSource reports the last task snapshot taken by the watcher.
type ProgressSource interface {
	Snapshot() ([]types.Task, time.Time)
}

// Dependencies are the services the server routes to. Remote and History are
// required; the rest are optional and their routes are omitted when nil.
type Dependencies struct {
	Remote    remote.API
	History   *history.Service
	Scheduler handlers.TaskScheduler
	Hub       *websocket.Hub
	Progress  ProgressSource
	Health    *health.Service
	Auth      *auth.Service
}

// Server handles HTTP requests for the homecloud API.
type Server struct {
	echo    *echo.Echo
	logger  zerolog.Logger
	cfg     *config.Config
	limiter *ratelimit.Limiter

	remote    remote.API
	history   *history.Service
	scheduler handlers.TaskScheduler
	hub       *websocket.Hub
	progress  ProgressSource
	health    *health.Service
	auth      *auth.Service

	startTime time.Time
}

// NewServer creates a new API server instance.
func NewServer(deps Dependencies, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
		limiter:   ratelimit.New(ratelimit.DefaultRequestsPerMinute),
		remote:    deps.Remote,
		history:   deps.History,
		scheduler: deps.Scheduler,
		hub:       deps.Hub,
		progress:  deps.Progress,
		health:    deps.Health,
		auth:      deps.Auth,
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Str("requestId", v.RequestID).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Str("requestId", v.RequestID).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	var protected []echo.MiddlewareFunc
	if s.auth != nil {
		protected = append(protected, apimw.BearerAuth(s.auth, s.limiter))
	}

	api := s.echo.Group("/api/v1", protected...)
	api.GET("/status", s.getStatus)

	peers := api.Group("/peers")
	peers.GET("", s.listPeers)
	peers.GET("/:pid/tasks", s.listTasks)
	peers.POST("/:pid/check", s.checkURLs, s.limiter.Middleware())
	peers.POST("/:pid/tasks", s.submitTasks, s.limiter.Middleware())

	history.NewHandlers(s.history).RegisterRoutes(api.Group("/history"))

	if s.scheduler != nil {
		handlers.NewSchedulerHandler(s.scheduler).RegisterRoutes(api.Group("/scheduler"))
	}

	if s.progress != nil {
		api.GET("/progress", s.getProgress)
	}

	if s.health != nil {
		health.NewHandlers(s.health, s.remote).RegisterRoutes(api.Group("/health"))
	}

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket, protected...)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Bool("auth", s.auth != nil).Msg("starting HTTP server")

	err := s.echo.Start(address)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Limiter returns the request limiter so its expired entries can be pruned.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}
