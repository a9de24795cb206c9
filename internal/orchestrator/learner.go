package orchestrator

import (
	"context"
	"time"

	"pipeforge/internal/repository"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// Learner persists the artifact of a fully-passing execution so future
// selections can reuse it. It is only invoked after the monitor reports
// success.
type Learner struct {
	vcs    services.VCSClient
	store  repository.TemplateStore
	logger Logger
}

// NewLearner creates a new Learner.
func NewLearner(vcs services.VCSClient, store repository.TemplateStore, logger Logger) *Learner {
	return &Learner{vcs: vcs, store: store, logger: logger}
}

// Record applies the quality gate and, if it passes, upserts the learned
// config under its content-derived ID. It reports whether a config was stored.
// The gate re-fetches the job breakdown and requires every job to have
// succeeded; a tolerated failure on a best-effort job still disqualifies the
// run.
func (l *Learner) Record(ctx context.Context, req *models.WorkflowRequest, profile *models.RepositoryProfile, artifact *models.PipelineArtifact, handle *models.ExecutionHandle) (bool, error) {
	jobs, err := l.vcs.GetJobs(ctx, req.RepoRef, req.Credential, handle.ExecutionID)
	if err != nil {
		l.logger.Warn("quality gate job fetch failed, skipping learning", "execution", handle.ExecutionID, "error", err)
		return false, nil
	}
	if !qualityGate(jobs) {
		l.logger.Info("quality gate rejected execution, skipping learning", "execution", handle.ExecutionID)
		return false, nil
	}

	cfg := &models.LearnedConfig{
		ID:              models.LearnedConfigID(profile.Language, profile.Framework, artifact.Content),
		Language:        profile.Language,
		Framework:       profile.Framework,
		PipelineID:      handle.ExecutionID,
		DurationSeconds: time.Since(handle.StartedAt).Seconds(),
		StagesPassed:    len(jobs),
		Content:         artifact.Content,
	}
	if err := l.store.UpsertLearnedConfig(ctx, cfg); err != nil {
		return false, err
	}
	l.logger.Info("learned config stored", "id", cfg.ID, "language", cfg.Language, "framework", cfg.Framework, "stages_passed", cfg.StagesPassed)
	return true, nil
}

// qualityGate requires every job to report success, including jobs whose
// failure the CI system tolerates. An empty breakdown proves nothing and
// fails the gate.
func qualityGate(jobs []models.JobStatus) bool {
	if len(jobs) == 0 {
		return false
	}
	for _, job := range jobs {
		if job.State != "success" {
			return false
		}
	}
	return true
}
