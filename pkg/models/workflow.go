package models

import (
	"time"
)

// WorkflowRequest is the immutable input for one orchestration run.
type WorkflowRequest struct {
	RepoRef      string `json:"repo_ref"`
	Credential   string `json:"credential"`
	Context      string `json:"context,omitempty"`
	PipelineOnly bool   `json:"pipeline_only,omitempty"`
	Branch       string `json:"branch,omitempty"`
}

// RepositoryProfile is the analyzer's view of a repository. Produced once,
// read-only afterward.
type RepositoryProfile struct {
	Language         string `json:"language"`
	Framework        string `json:"framework"`
	PackageManager   string `json:"package_manager"`
	HasPipelineFiles bool   `json:"has_existing_pipeline_files"`
}

// ExecutionState is the state reported by the version-control system for a
// triggered pipeline execution.
type ExecutionState string

const (
	ExecutionQueued    ExecutionState = "queued"
	ExecutionRunning   ExecutionState = "running"
	ExecutionSucceeded ExecutionState = "succeeded"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionCanceled  ExecutionState = "canceled"
	ExecutionTimedOut  ExecutionState = "timed_out"
)

// Terminal reports whether the state ends monitoring. TimedOut is terminal but
// synthesized locally, never reported by the remote side.
func (s ExecutionState) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionCanceled, ExecutionTimedOut:
		return true
	}
	return false
}

// ExecutionHandle identifies a triggered execution. It lives for the duration
// of monitoring and is discarded once a terminal state is reached.
type ExecutionHandle struct {
	ExecutionID string    `json:"execution_id"`
	Branch      string    `json:"branch"`
	CommitID    string    `json:"commit_id"`
	StartedAt   time.Time `json:"started_at"`
}

// JobStatus is the per-job breakdown of an execution. LogText is only
// populated when logs have been fetched explicitly.
type JobStatus struct {
	JobName      string `json:"job_name"`
	State        string `json:"state"`
	AllowFailure bool   `json:"allow_failure,omitempty"`
	LogText      string `json:"log_text,omitempty"`
}

// ErrorClass is the result of matching failure logs against the classifier
// table.
type ErrorClass string

const (
	ErrClassMissingImage    ErrorClass = "missing_image"
	ErrClassNetwork         ErrorClass = "network"
	ErrClassPermission      ErrorClass = "permission"
	ErrClassTimeout         ErrorClass = "timeout"
	ErrClassSyntax          ErrorClass = "syntax"
	ErrClassArtifactMissing ErrorClass = "artifact_missing"
	ErrClassUnclassified    ErrorClass = "unclassified"
)

// HealingAttempt records one iteration of the self-healing loop.
type HealingAttempt struct {
	Attempt        int             `json:"attempt"`
	ErrorClass     ErrorClass      `json:"error_class"`
	FixDescription string          `json:"fix_description,omitempty"`
	Handle         ExecutionHandle `json:"handle"`
}

// WorkflowPhase is the coarse state of a workflow as exposed to status polling.
type WorkflowPhase string

const (
	PhaseAnalyzing          WorkflowPhase = "analyzing"
	PhaseGenerating         WorkflowPhase = "generating"
	PhaseCommitted          WorkflowPhase = "committed"
	PhaseMonitoring         WorkflowPhase = "monitoring"
	PhaseHealing            WorkflowPhase = "healing"
	PhaseSucceeded          WorkflowPhase = "succeeded"
	PhaseFailed             WorkflowPhase = "failed"
	PhaseMaxAttemptsReached WorkflowPhase = "max_attempts_reached"
	PhaseTimedOut           WorkflowPhase = "timed_out"
	PhaseCanceled           WorkflowPhase = "canceled"
)

// StatusEvent is one entry in a workflow's event trail.
type StatusEvent struct {
	Time    time.Time     `json:"time"`
	Phase   WorkflowPhase `json:"phase"`
	Message string        `json:"message"`
}

// WorkflowStatus is the async-queryable progress view of one workflow.
type WorkflowStatus struct {
	ExecutionRef string        `json:"execution_ref"`
	Phase        WorkflowPhase `json:"state"`
	Attempt      int           `json:"attempt"`
	Branch       string        `json:"branch"`
	CommitID     string        `json:"commit_id"`
	Events       []StatusEvent `json:"events"`
}

// StartResult is returned synchronously from startWorkflow once the initial
// commit has succeeded.
type StartResult struct {
	CommitID     string `json:"commit_id"`
	Branch       string `json:"branch"`
	ExecutionRef string `json:"execution_ref"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
