package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// Server exposes the read-only status API. No endpoint mutates state.
type Server struct {
	engine ports.WorkflowEngine
	dlq    ports.DeadLetterQueue
	logger *slog.Logger
	echo   *echo.Echo
}

func NewServer(eng ports.WorkflowEngine, dlq ports.DeadLetterQueue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		engine: eng,
		dlq:    dlq,
		logger: logger.With("component", "status-api"),
		echo:   e,
	}

	e.GET("/status/queues", s.queueStats)
	e.GET("/runs/:id", s.getRun)
	e.GET("/workflows/:id/metrics", s.workflowMetrics)
	e.GET("/dlq", s.listDeadLetters)

	return s
}

func (s *Server) Start(addr string) error {
	s.logger.Info("status api listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) queueStats(c echo.Context) error {
	snapshot, err := s.engine.QueueStats(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) getRun(c echo.Context) error {
	run, err := s.engine.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) workflowMetrics(c echo.Context) error {
	metrics, err := s.engine.GetWorkflowMetrics(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, metrics)
}

func (s *Server) listDeadLetters(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}

	items, err := s.dlq.List(c.Request().Context(), limit)
	if err != nil {
		return s.mapError(c, err)
	}

	count, err := s.dlq.Count(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total": count,
		"items": items,
	})
}

// mapError translates tagged domain errors to HTTP statuses; internal
// detail is logged, not returned.
func (s *Server) mapError(c echo.Context, err error) error {
	var status int
	var message string

	switch {
	case domain.IsNotFound(err):
		status, message = http.StatusNotFound, err.Error()
	case domain.IsValidation(err):
		status, message = http.StatusBadRequest, err.Error()
	case domain.IsInvalidState(err) || domain.IsConflict(err):
		status, message = http.StatusConflict, err.Error()
	default:
		s.logger.Error("status api internal error", "error", err.Error())
		status, message = http.StatusInternalServerError, "internal error"
	}

	return c.JSON(status, map[string]string{"error": message})
}
