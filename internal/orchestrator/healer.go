package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"pipeforge/internal/pipeline"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// HealResult carries the final state of the self-healing loop together with
// the attempt trail and the last committed artifact.
type HealResult struct {
	Final    *MonitorResult
	Artifact *models.PipelineArtifact
	Handle   *models.ExecutionHandle
	Attempts []models.HealingAttempt
}

// Healer runs the bounded retry loop after a failed execution: classify the
// failure, request a fix, re-commit, re-monitor. It runs on the same
// background task as the monitor, so attempts for one workflow never overlap.
type Healer struct {
	vcs        services.VCSClient
	model      services.ModelClient
	normalizer *pipeline.Normalizer
	committer  *Committer
	monitor    *Monitor
	budget     int
	logger     Logger
}

// NewHealer creates a new Healer with the given retry budget.
func NewHealer(vcs services.VCSClient, model services.ModelClient, normalizer *pipeline.Normalizer, committer *Committer, monitor *Monitor, budget int, logger Logger) *Healer {
	if budget <= 0 {
		budget = 10
	}
	return &Healer{vcs: vcs, model: model, normalizer: normalizer, committer: committer, monitor: monitor, budget: budget, logger: logger}
}

// Heal repairs and re-runs a failed execution until it succeeds, reaches a
// non-healable terminal state, or the attempt budget is exhausted. Each
// attempt commits to a fresh branch, so it can never collide with an earlier
// execution. The observe callback, if set, receives per-attempt progress.
func (h *Healer) Heal(ctx context.Context, req *models.WorkflowRequest, artifact *models.PipelineArtifact, handle *models.ExecutionHandle, failed *MonitorResult, observe func(attempt int, class models.ErrorClass, msg string)) (*HealResult, error) {
	result := &HealResult{Final: failed, Artifact: artifact, Handle: handle}

	for attempt := 1; attempt <= h.budget; attempt++ {
		logText := h.failureLogs(ctx, req, result.Final.ExecutionID)
		class := pipeline.ClassifyFailure(logText)
		h.logger.Info("healing attempt started", "attempt", attempt, "class", class)
		if observe != nil {
			observe(attempt, class, fmt.Sprintf("attempt %d: failure classified as %s", attempt, class))
		}

		fixed, err := h.requestFix(ctx, result.Artifact, class, logText)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrFixGeneration, err)
		}

		patched := models.PipelineArtifact{Content: fixed, Source: result.Artifact.Source, TemplateID: result.Artifact.TemplateID}
		normalized, err := h.normalizer.Normalize(patched)
		if err != nil {
			return result, fmt.Errorf("%w: normalize fix: %v", ErrFixGeneration, err)
		}

		// Best effort: make sure the superseded execution is not still running
		// before its replacement lands.
		if id := result.Final.ExecutionID; id != "" {
			if err := h.vcs.CancelExecution(ctx, req.RepoRef, req.Credential, id); err != nil {
				h.logger.Debug("cancel of superseded execution failed", "execution", id, "error", err)
			}
		}

		branch := NewBranchName(attempt)
		message := fmt.Sprintf("fix pipeline (%s), attempt %d", class, attempt)
		newHandle, err := h.committer.Commit(ctx, req, &normalized, branch, message)
		if err != nil {
			return result, err
		}

		monitorResult, err := h.monitor.Watch(ctx, req, newHandle)
		if err != nil {
			return result, err
		}

		result.Artifact = &normalized
		result.Handle = newHandle
		result.Final = monitorResult
		result.Attempts = append(result.Attempts, models.HealingAttempt{
			Attempt:        attempt,
			ErrorClass:     class,
			FixDescription: fmt.Sprintf("model fix for %s", class),
			Handle:         *newHandle,
		})

		switch monitorResult.State {
		case models.ExecutionSucceeded:
			h.logger.Info("healing succeeded", "attempt", attempt, "branch", branch)
			return result, nil
		case models.ExecutionFailed:
			continue
		default:
			// Timed out or canceled: terminal, but not something a patch fixes.
			return result, nil
		}
	}

	return result, fmt.Errorf("%w after %d attempts", ErrMaxAttemptsExhausted, h.budget)
}

// failureLogs collects the log text of failed jobs. Fetch failures yield empty
// text; the classifier falls back to unclassified in that case.
func (h *Healer) failureLogs(ctx context.Context, req *models.WorkflowRequest, executionID string) string {
	if executionID == "" {
		return ""
	}
	jobs, err := h.vcs.GetJobLogs(ctx, req.RepoRef, req.Credential, executionID)
	if err != nil {
		h.logger.Warn("job log fetch failed", "execution", executionID, "error", err)
		return ""
	}
	var b strings.Builder
	for _, job := range jobs {
		if job.State != "failed" || job.LogText == "" {
			continue
		}
		fmt.Fprintf(&b, "=== job %s ===\n%s\n", job.JobName, job.LogText)
	}
	return b.String()
}

// requestFix asks the model for a full replacement artifact. A failed call is
// retried once immediately; a second failure is fatal to the workflow.
func (h *Healer) requestFix(ctx context.Context, artifact *models.PipelineArtifact, class models.ErrorClass, logText string) (models.ArtifactContent, error) {
	userContext := fmt.Sprintf("Error class: %s\n\nFailed job logs:\n%s\n\nCurrent pipeline definition:\n%s",
		class, logText, artifact.Content.PipelineDefinition)
	if artifact.Content.ImageBuildDefinition != "" {
		userContext += "\n\nCurrent image build definition:\n" + artifact.Content.ImageBuildDefinition
	}

	var lastErr error
	for try := 0; try < 2; try++ {
		text, err := h.model.Complete(ctx, pipeline.SystemPromptFix, userContext)
		if err != nil {
			lastErr = err
			continue
		}
		content, err := pipeline.ParseArtifactResponse(text)
		if err != nil {
			lastErr = err
			continue
		}
		if content.ImageBuildDefinition == "" {
			content.ImageBuildDefinition = artifact.Content.ImageBuildDefinition
		}
		return content, nil
	}
	return models.ArtifactContent{}, lastErr
}
