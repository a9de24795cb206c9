package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"pipeforge/internal/orchestrator"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// StartWorkflow kicks off pipeline generation for a repository. The response
// is returned once the initial commit has landed; progress is queryable via
// GetWorkflowStatus.
// (POST /api/v1/workflows)
func (s *Server) StartWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.RepoRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_ref is required")
	}

	result, err := s.Workflows.StartWorkflow(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRepoNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, orchestrator.ErrCommitFailed):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusAccepted, result)
}

// GetWorkflowStatus returns the progress view of one workflow
// (GET /api/v1/workflows/:ref)
func (s *Server) GetWorkflowStatus(c echo.Context) error {
	ref := c.Param("ref")
	status, ok := s.Workflows.GetWorkflowStatus(ref)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown workflow: "+ref)
	}
	return c.JSON(http.StatusOK, status)
}

// CancelWorkflow aborts a running workflow's background task
// (DELETE /api/v1/workflows/:ref)
func (s *Server) CancelWorkflow(c echo.Context) error {
	ref := c.Param("ref")
	if !s.Workflows.CancelWorkflow(ref) {
		return echo.NewHTTPError(http.StatusNotFound, "no running workflow: "+ref)
	}
	return c.NoContent(http.StatusAccepted)
}

// HandleLearnCallback receives the notification the injected learning job
// sends at the end of a pipeline. Learning itself is driven by the monitor's
// quality gate; the callback exists so pipeline runs are visible even when
// they were not started by this instance.
// (POST /api/v1/learn)
func (s *Server) HandleLearnCallback(c echo.Context) error {
	var body struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	s.Logger.Info("learning callback received", "execution", body.ExecutionID)
	return c.NoContent(http.StatusAccepted)
}
