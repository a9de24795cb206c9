// Package services contains clients for the external collaborators: the
// generative model sidecar, the repository analyzer, and the version-control
// system.
package services

import (
	"context"
	"errors"

	"pipeforge/pkg/models"
)

var (
	// ErrRepoNotFound is returned by the analyzer when a repository is unreachable.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrModelUnavailable is returned when the generative model rejects the call.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout is returned when a model call exceeds its deadline.
	ErrModelTimeout = errors.New("model call timed out")
)

// ModelClient talks to the generative model sidecar.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt, userContext string) (string, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// AnalyzerClient produces a RepositoryProfile for a repository reference.
type AnalyzerClient interface {
	Analyze(ctx context.Context, repoRef, credential string) (*models.RepositoryProfile, error)
}

// VCSClient is the version-control boundary: branches, commits, execution
// status and job logs.
type VCSClient interface {
	CreateBranch(ctx context.Context, repoRef, credential, branch, fromRef string) error

	// CommitFiles writes the given files to a branch as a single commit,
	// creating or updating each file as needed, and returns the commit ID.
	CommitFiles(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error)

	// GetExecutionStatus resolves the latest execution for a ref (branch name)
	// and returns its ID and state.
	GetExecutionStatus(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error)

	// GetJobs returns the per-job status breakdown of an execution without logs.
	GetJobs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error)

	// GetJobLogs returns the per-job breakdown with log text populated for
	// failed jobs.
	GetJobLogs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error)

	// CancelExecution cancels a still-running execution. Best effort.
	CancelExecution(ctx context.Context, repoRef, credential, executionID string) error
}
