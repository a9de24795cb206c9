package orchestrator

import (
	"context"
	"time"

	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// MonitorResult is the outcome of watching one execution to a terminal state.
type MonitorResult struct {
	State       models.ExecutionState
	ExecutionID string
	Jobs        []models.JobStatus
	Polls       int
}

// Monitor polls an execution's status on a fixed interval until it reaches a
// terminal state or the poll budget runs out. Poll failures are tolerated; the
// next scheduled poll simply retries.
type Monitor struct {
	vcs      services.VCSClient
	interval time.Duration
	maxPolls int
	logger   Logger
}

// NewMonitor creates a new Monitor.
func NewMonitor(vcs services.VCSClient, interval time.Duration, maxPolls int, logger Logger) *Monitor {
	return &Monitor{vcs: vcs, interval: interval, maxPolls: maxPolls, logger: logger}
}

// Watch polls until the execution terminates, the wall-clock budget is
// exhausted, or the context is canceled. Budget exhaustion while still queued
// or running yields TimedOut, deliberately distinct from Failed so callers can
// tell infrastructure stalls from genuine failures. The handle's ExecutionID
// is filled in as soon as the remote side reports one.
func (m *Monitor) Watch(ctx context.Context, req *models.WorkflowRequest, handle *models.ExecutionHandle) (*MonitorResult, error) {
	result := &MonitorResult{State: models.ExecutionQueued}

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for poll := 1; poll <= m.maxPolls; poll++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		timer.Reset(m.interval)

		id, state, err := m.vcs.GetExecutionStatus(ctx, req.RepoRef, req.Credential, handle.Branch)
		result.Polls = poll
		if err != nil {
			m.logger.Debug("status poll failed, retrying next interval", "branch", handle.Branch, "poll", poll, "error", err)
			continue
		}
		if id != "" {
			result.ExecutionID = id
			handle.ExecutionID = id
		}
		result.State = state

		if state.Terminal() {
			m.fetchJobs(ctx, req, result)
			m.logger.Info("execution reached terminal state", "branch", handle.Branch, "state", state, "polls", poll)
			return result, nil
		}
	}

	result.State = models.ExecutionTimedOut
	m.logger.Warn("execution monitoring timed out", "branch", handle.Branch, "polls", result.Polls)
	return result, nil
}

// fetchJobs fills in the per-job breakdown. A failure here leaves the result
// usable; callers that need logs re-fetch them anyway.
func (m *Monitor) fetchJobs(ctx context.Context, req *models.WorkflowRequest, result *MonitorResult) {
	if result.ExecutionID == "" {
		return
	}
	jobs, err := m.vcs.GetJobs(ctx, req.RepoRef, req.Credential, result.ExecutionID)
	if err != nil {
		m.logger.Debug("job breakdown fetch failed", "execution", result.ExecutionID, "error", err)
		return
	}
	result.Jobs = jobs
}
