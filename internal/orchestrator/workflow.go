package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"pipeforge/internal/pipeline"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// WorkflowService is the caller-facing surface of the orchestrator. The
// initial commit runs synchronously; everything after it (monitoring, healing,
// learning) happens on one detached background task per workflow. Workflows
// share nothing but the external store, so no cross-workflow locking exists.
type WorkflowService struct {
	analyzer  services.AnalyzerClient
	generator *pipeline.Generator
	committer *Committer
	monitor   *Monitor
	healer    *Healer
	learner   *Learner
	logger    Logger

	mu       sync.RWMutex
	statuses map[string]*models.WorkflowStatus
	cancels  map[string]context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	workflowsStarted metric.Int64Counter
	healingAttempts  metric.Int64Counter
	configsLearned   metric.Int64Counter
}

// NewWorkflowService creates a new WorkflowService. Background tasks derive
// from an internal root context so Shutdown can stop all pollers between
// iterations.
func NewWorkflowService(analyzer services.AnalyzerClient, generator *pipeline.Generator, committer *Committer, monitor *Monitor, healer *Healer, learner *Learner, logger Logger) *WorkflowService {
	baseCtx, baseCancel := context.WithCancel(context.Background())

	meter := otel.Meter("pipeforge/orchestrator")
	workflowsStarted, _ := meter.Int64Counter("pipeforge.workflows.started")
	healingAttempts, _ := meter.Int64Counter("pipeforge.healing.attempts")
	configsLearned, _ := meter.Int64Counter("pipeforge.configs.learned")

	return &WorkflowService{
		analyzer:         analyzer,
		generator:        generator,
		committer:        committer,
		monitor:          monitor,
		healer:           healer,
		learner:          learner,
		logger:           logger,
		statuses:         make(map[string]*models.WorkflowStatus),
		cancels:          make(map[string]context.CancelFunc),
		baseCtx:          baseCtx,
		baseCancel:       baseCancel,
		workflowsStarted: workflowsStarted,
		healingAttempts:  healingAttempts,
		configsLearned:   configsLearned,
	}
}

// StartWorkflow analyzes the repository, generates and commits a pipeline
// artifact, then detaches the monitoring task. It returns once the commit has
// landed; commit failure is the only error surfaced to the caller from the
// pipeline side.
func (s *WorkflowService) StartWorkflow(ctx context.Context, req *models.WorkflowRequest) (*models.StartResult, error) {
	events := []models.StatusEvent{event(models.PhaseAnalyzing, "analyzing repository "+req.RepoRef)}

	profile, err := s.analyzer.Analyze(ctx, req.RepoRef, req.Credential)
	if err != nil {
		return nil, fmt.Errorf("repository analysis failed: %w", err)
	}

	events = append(events, event(models.PhaseGenerating,
		fmt.Sprintf("generating artifact for language=%s framework=%s", profile.Language, profile.Framework)))
	artifact, err := s.generator.Generate(ctx, profile, req.Context)
	if err != nil {
		return nil, fmt.Errorf("artifact generation failed: %w", err)
	}

	branch := NewBranchName(0)
	handle, err := s.committer.Commit(ctx, req, artifact, branch, "add generated CI/CD pipeline")
	if err != nil {
		return nil, err
	}

	events = append(events, event(models.PhaseCommitted,
		fmt.Sprintf("committed %s to branch %s (source: %s)", handle.CommitID, branch, artifact.Source)))

	runCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.statuses[branch] = &models.WorkflowStatus{
		ExecutionRef: branch,
		Phase:        models.PhaseCommitted,
		Branch:       branch,
		CommitID:     handle.CommitID,
		Events:       events,
	}
	s.cancels[branch] = cancel
	s.mu.Unlock()

	s.workflowsStarted.Add(ctx, 1)
	s.wg.Add(1)
	go s.run(runCtx, req, profile, artifact, handle)

	return &models.StartResult{CommitID: handle.CommitID, Branch: branch, ExecutionRef: branch}, nil
}

// run owns one workflow's background lifecycle: monitor, heal on failure,
// learn on success.
func (s *WorkflowService) run(ctx context.Context, req *models.WorkflowRequest, profile *models.RepositoryProfile, artifact *models.PipelineArtifact, handle *models.ExecutionHandle) {
	ref := handle.Branch
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, ref)
		s.mu.Unlock()
	}()

	s.appendEvent(ref, models.PhaseMonitoring, "watching execution on branch "+ref)

	result, err := s.monitor.Watch(ctx, req, handle)
	if err != nil {
		s.appendEvent(ref, models.PhaseCanceled, "workflow canceled: "+err.Error())
		return
	}

	switch result.State {
	case models.ExecutionSucceeded:
		s.learn(ctx, ref, req, profile, artifact, handle)
	case models.ExecutionFailed:
		s.heal(ctx, ref, req, profile, artifact, handle, result)
	case models.ExecutionTimedOut:
		s.appendEvent(ref, models.PhaseTimedOut, "execution did not finish within the monitoring budget")
	case models.ExecutionCanceled:
		s.appendEvent(ref, models.PhaseCanceled, "execution was canceled remotely")
	}
}

func (s *WorkflowService) heal(ctx context.Context, ref string, req *models.WorkflowRequest, profile *models.RepositoryProfile, artifact *models.PipelineArtifact, handle *models.ExecutionHandle, failed *MonitorResult) {
	s.appendEvent(ref, models.PhaseHealing, "execution failed, entering self-healing")

	observe := func(attempt int, class models.ErrorClass, msg string) {
		s.healingAttempts.Add(ctx, 1)
		s.setAttempt(ref, attempt)
		s.appendEvent(ref, models.PhaseHealing, msg)
	}

	result, err := s.healer.Heal(ctx, req, artifact, handle, failed, observe)
	switch {
	case err == nil:
		switch result.Final.State {
		case models.ExecutionSucceeded:
			s.learn(ctx, ref, req, profile, result.Artifact, result.Handle)
		case models.ExecutionTimedOut:
			s.appendEvent(ref, models.PhaseTimedOut, "healed execution did not finish within the monitoring budget")
		default:
			s.appendEvent(ref, models.PhaseCanceled, "healed execution was canceled")
		}
	case errors.Is(err, ErrMaxAttemptsExhausted):
		s.appendEvent(ref, models.PhaseMaxAttemptsReached, err.Error())
	case errors.Is(err, context.Canceled):
		s.appendEvent(ref, models.PhaseCanceled, "workflow canceled during healing")
	default:
		s.appendEvent(ref, models.PhaseFailed, "self-healing failed: "+err.Error())
	}
}

func (s *WorkflowService) learn(ctx context.Context, ref string, req *models.WorkflowRequest, profile *models.RepositoryProfile, artifact *models.PipelineArtifact, handle *models.ExecutionHandle) {
	stored, err := s.learner.Record(ctx, req, profile, artifact, handle)
	if err != nil {
		s.logger.Error("failed to store learned config", "ref", ref, "error", err)
	}
	if stored {
		s.configsLearned.Add(ctx, 1)
		s.appendEvent(ref, models.PhaseSucceeded, "execution succeeded, configuration stored for reuse")
		return
	}
	s.appendEvent(ref, models.PhaseSucceeded, "execution succeeded")
}

// GetWorkflowStatus returns a copy of a workflow's progress view.
func (s *WorkflowService) GetWorkflowStatus(ref string) (*models.WorkflowStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[ref]
	if !ok {
		return nil, false
	}
	copied := *status
	copied.Events = append([]models.StatusEvent(nil), status.Events...)
	return &copied, true
}

// CancelWorkflow aborts a workflow's background task. The cancellation takes
// effect between poll iterations; in-flight requests are bounded by their own
// timeouts.
func (s *WorkflowService) CancelWorkflow(ref string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[ref]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Shutdown cancels all background tasks and waits for them to exit, up to the
// context deadline.
func (s *WorkflowService) Shutdown(ctx context.Context) error {
	s.baseCancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WorkflowService) appendEvent(ref string, phase models.WorkflowPhase, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[ref]
	if !ok {
		return
	}
	status.Phase = phase
	status.Events = append(status.Events, event(phase, msg))
}

func (s *WorkflowService) setAttempt(ref string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.statuses[ref]; ok {
		status.Attempt = attempt
	}
}

func event(phase models.WorkflowPhase, msg string) models.StatusEvent {
	return models.StatusEvent{Time: time.Now().UTC(), Phase: phase, Message: msg}
}
