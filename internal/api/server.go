// Package api serves the daemon's status endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bakkerme/posterdigest/internal/runner"
)

// Runner is the part of the runner the API drives.
type Runner interface {
	Status() runner.Status
	Go(ctx context.Context) error
}

// Schedule reports the next trigger time. It may be nil when no schedule is set.
type Schedule interface {
	Next(now time.Time) (time.Time, error)
}

type Server struct {
	runner   Runner
	schedule Schedule
	// runCtx outlives requests so runs queued over HTTP are not cancelled when
	// the response is written.
	runCtx context.Context
	logger *slog.Logger
	echo   *echo.Echo
	now    func() time.Time
}

func NewServer(runCtx context.Context, logger *slog.Logger, r Runner, schedule Schedule) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	server := &Server{
		runner:   r,
		schedule: schedule,
		runCtx:   runCtx,
		logger:   logger,
		echo:     e,
		now:      time.Now,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.POST("/run", s.handleRun)
}

// Start serves on addr until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start(addr string) error {
	s.logger.Info("status api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "posterdigest",
	})
}

type statusResponse struct {
	runner.Status
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := statusResponse{Status: s.runner.Status()}
	if s.schedule != nil {
		if next, err := s.schedule.Next(s.now()); err == nil {
			resp.NextRun = &next
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRun(c echo.Context) error {
	if err := s.runner.Go(s.runCtx); err != nil {
		if errors.Is(err, runner.ErrBusy) {
			return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "run started"})
}
