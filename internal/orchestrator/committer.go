// Package orchestrator owns the workflow lifecycle: committing artifacts,
// monitoring executions, self-healing on failure, and recording proven
// configurations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

var (
	// ErrCommitFailed is fatal to a workflow and reported synchronously.
	ErrCommitFailed = errors.New("commit failed")

	// ErrMaxAttemptsExhausted ends the self-healing loop.
	ErrMaxAttemptsExhausted = errors.New("max healing attempts reached")

	// ErrFixGeneration marks a fix request the model could not serve even
	// after the immediate retry.
	ErrFixGeneration = errors.New("fix generation failed")
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	pipelineFileName   = ".gitlab-ci.yml"
	imageBuildFileName = "Dockerfile"
)

// Committer turns a validated artifact into a version-control commit on a
// fresh branch. It returns as soon as the commit lands; it never waits for the
// execution to start.
type Committer struct {
	vcs    services.VCSClient
	logger Logger
}

// NewCommitter creates a new Committer.
func NewCommitter(vcs services.VCSClient, logger Logger) *Committer {
	return &Committer{vcs: vcs, logger: logger}
}

// NewBranchName generates a unique branch name. Attempt zero is the initial
// commit; healing attempts get a fix suffix so they never collide with the
// in-flight execution's branch.
func NewBranchName(attempt int) string {
	name := fmt.Sprintf("pipeforge/%s-%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	if attempt > 0 {
		name = fmt.Sprintf("%s-fix-%d", name, attempt)
	}
	return name
}

// Commit writes the artifact files to a new branch as a single commit and
// returns the execution handle. Any failure here wraps ErrCommitFailed.
func (c *Committer) Commit(ctx context.Context, req *models.WorkflowRequest, artifact *models.PipelineArtifact, branch, message string) (*models.ExecutionHandle, error) {
	fromRef := req.Branch
	if fromRef == "" {
		fromRef = "main"
	}

	if err := c.vcs.CreateBranch(ctx, req.RepoRef, req.Credential, branch, fromRef); err != nil {
		return nil, fmt.Errorf("%w: create branch %s: %v", ErrCommitFailed, branch, err)
	}

	files := map[string]string{
		pipelineFileName: artifact.Content.PipelineDefinition,
	}
	if !req.PipelineOnly && artifact.Content.ImageBuildDefinition != "" {
		files[imageBuildFileName] = artifact.Content.ImageBuildDefinition
	}

	commitID, err := c.vcs.CommitFiles(ctx, req.RepoRef, req.Credential, branch, files, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	c.logger.Info("artifact committed", "repo", req.RepoRef, "branch", branch, "commit", commitID, "source", artifact.Source)
	return &models.ExecutionHandle{
		Branch:    branch,
		CommitID:  commitID,
		StartedAt: time.Now().UTC(),
	}, nil
}
