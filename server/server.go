// Package server hosts the HTTP surface: the REST API, the SSE chat stream
// and the Prometheus metrics endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mindmesh/ai/chat"
	"github.com/hrygo/mindmesh/ai/metrics"
	"github.com/hrygo/mindmesh/ai/processor"
	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/server/router/api"
	"github.com/hrygo/mindmesh/store"
)

type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
}

// NewServer assembles the echo instance and mounts the API routes.
func NewServer(
	_ context.Context,
	instanceProfile *profile.Profile,
	storeInstance *store.Store,
	pipeline *chat.Pipeline,
	proc *processor.Processor,
	index vector.Index,
	exporter *metrics.Exporter,
) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	s := &Server{
		echoServer: e,
		profile:    instanceProfile,
		store:      storeInstance,
	}

	apiService := api.NewService(instanceProfile, storeInstance, pipeline, proc, index)
	apiService.RegisterRoutes(e)

	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	return s, nil
}

// Start begins serving in a background goroutine; startup failures other than
// a clean close are logged rather than returned so the caller can keep the
// shutdown path uniform.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				slog.Error("request", attrs...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}
