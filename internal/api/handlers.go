// Package api contains the HTTP handlers for the orchestrator service
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"pipeforge/internal/orchestrator"
	"pipeforge/internal/repository"
	"pipeforge/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Workflows *orchestrator.WorkflowService
	Store     repository.TemplateStore
	Logger    Logger
}

// NewServer creates a new Server.
func NewServer(workflows *orchestrator.WorkflowService, store repository.TemplateStore, logger Logger) *Server {
	return &Server{Workflows: workflows, Store: store, Logger: logger}
}

// HandleHealth returns service health including a database connectivity check
// (GET /healthz)
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   "pipeforge",
		Version:   "1.0.0",
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"db": "ok"},
	}
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Checks["db"] = err.Error()
	}
	return c.JSON(http.StatusOK, status)
}
