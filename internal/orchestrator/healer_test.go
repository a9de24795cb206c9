package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeforge/internal/pipeline"
	"pipeforge/pkg/models"
)

const fixedPipeline = "stages:\n  - build\nbuild:\n  script:\n    - make\n"

func fixResponse(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(models.ArtifactContent{
		PipelineDefinition:   fixedPipeline,
		ImageBuildDefinition: "FROM scratch\n",
	})
	require.NoError(t, err)
	return string(b)
}

func fixModel(t *testing.T) *fakeModel {
	return &fakeModel{
		complete: func(ctx context.Context, systemPrompt, userContext string) (string, error) {
			return fixResponse(t), nil
		},
	}
}

func failedResult() *MonitorResult {
	return &MonitorResult{State: models.ExecutionFailed, ExecutionID: "1"}
}

func startingArtifact() *models.PipelineArtifact {
	return &models.PipelineArtifact{
		Content: models.ArtifactContent{PipelineDefinition: fixedPipeline, ImageBuildDefinition: "FROM scratch\n"},
		Source:  models.SourceGenerated,
	}
}

// newTestHealer wires a healer whose monitor immediately reports the state
// produced by nextState.
func newTestHealer(t *testing.T, vcs *fakeVCS, model *fakeModel, budget int) *Healer {
	t.Helper()
	normalizer := pipeline.NewNormalizer("https://orchestrator.local")
	committer := NewCommitter(vcs, nopLogger{})
	monitor := NewMonitor(vcs, time.Millisecond, 1, nopLogger{})
	return NewHealer(vcs, model, normalizer, committer, monitor, budget, nopLogger{})
}

func TestHealExhaustsBudget(t *testing.T) {
	var branches []string
	vcs := happyVCS()
	vcs.createBranch = func(ctx context.Context, repoRef, credential, branch, fromRef string) error {
		branches = append(branches, branch)
		return nil
	}
	vcs.getExecutionStatus = func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
		return "1", models.ExecutionFailed, nil
	}
	vcs.getJobs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return []models.JobStatus{{JobName: "build", State: "failed", LogText: "make: *** Error 2"}}, nil
	}

	h := newTestHealer(t, vcs, fixModel(t), 10)
	result, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(), nil)

	assert.ErrorIs(t, err, ErrMaxAttemptsExhausted, "a run that never recovers must stop, not loop")
	assert.Len(t, result.Attempts, 10)
	require.Len(t, branches, 10)
	seen := make(map[string]bool)
	for i, branch := range branches {
		assert.False(t, seen[branch], "every attempt gets a fresh branch")
		seen[branch] = true
		assert.Contains(t, branch, "-fix-", "attempt %d branch %q", i+1, branch)
	}
}

func TestHealSucceedsMidway(t *testing.T) {
	attempts := 0
	var canceled []string
	vcs := happyVCS()
	vcs.cancelExecution = func(ctx context.Context, repoRef, credential, executionID string) error {
		canceled = append(canceled, executionID)
		return nil
	}
	vcs.getExecutionStatus = func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
		attempts++
		if attempts < 3 {
			return "1", models.ExecutionFailed, nil
		}
		return "3", models.ExecutionSucceeded, nil
	}
	vcs.getJobs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return []models.JobStatus{{JobName: "build", State: "success"}}, nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return []models.JobStatus{{JobName: "build", State: "failed", LogText: "connection refused"}}, nil
	}

	h := newTestHealer(t, vcs, fixModel(t), 10)
	result, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(), nil)

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSucceeded, result.Final.State)
	assert.Len(t, result.Attempts, 3)
	assert.True(t, strings.HasSuffix(result.Handle.Branch, "-fix-3"), "handle points at the last attempt's branch: %q", result.Handle.Branch)
	assert.Contains(t, result.Artifact.Content.PipelineDefinition, pipeline.StageLearn, "committed fix is normalized")
	assert.Equal(t, []string{"1", "1", "1"}, canceled, "each attempt cancels the execution it supersedes")
}

func TestHealObserverSeesClassifiedFailure(t *testing.T) {
	vcs := happyVCS()
	vcs.getExecutionStatus = func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
		return "2", models.ExecutionSucceeded, nil
	}
	vcs.getJobs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return []models.JobStatus{{JobName: "deploy", State: "failed", LogText: "dial tcp: connection refused"}}, nil
	}

	var gotAttempt int
	var gotClass models.ErrorClass
	h := newTestHealer(t, vcs, fixModel(t), 10)
	_, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(),
		func(attempt int, class models.ErrorClass, msg string) {
			gotAttempt = attempt
			gotClass = class
		})

	require.NoError(t, err)
	assert.Equal(t, 1, gotAttempt)
	assert.Equal(t, models.ErrClassNetwork, gotClass)
}

func TestHealFixGenerationFailureIsFatal(t *testing.T) {
	commits := 0
	vcs := happyVCS()
	vcs.commitFiles = func(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error) {
		commits++
		return "abc123", nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}

	model := &fakeModel{
		complete: func(ctx context.Context, systemPrompt, userContext string) (string, error) {
			return "", errors.New("model down")
		},
	}

	h := newTestHealer(t, vcs, model, 10)
	_, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(), nil)

	assert.ErrorIs(t, err, ErrFixGeneration)
	assert.Zero(t, commits, "nothing gets committed without a fix")
}

func TestHealRetriesFixRequestOnce(t *testing.T) {
	modelCalls := 0
	model := &fakeModel{
		complete: func(ctx context.Context, systemPrompt, userContext string) (string, error) {
			modelCalls++
			if modelCalls == 1 {
				return "", errors.New("transient")
			}
			return fixResponse(t), nil
		},
	}

	vcs := happyVCS()
	vcs.getExecutionStatus = func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
		return "2", models.ExecutionSucceeded, nil
	}
	vcs.getJobs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}

	h := newTestHealer(t, vcs, model, 10)
	result, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(), nil)

	require.NoError(t, err)
	assert.Equal(t, 2, modelCalls)
	assert.Equal(t, models.ExecutionSucceeded, result.Final.State)
}

func TestHealStopsOnNonHealableTerminalState(t *testing.T) {
	vcs := happyVCS()
	vcs.getExecutionStatus = func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
		return "2", models.ExecutionCanceled, nil
	}
	vcs.getJobs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}
	vcs.getJobLogs = func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
		return nil, nil
	}

	h := newTestHealer(t, vcs, fixModel(t), 10)
	result, err := h.Heal(context.Background(), testRequest(), startingArtifact(), &models.ExecutionHandle{Branch: "b0"}, failedResult(), nil)

	require.NoError(t, err, "a canceled execution is not retried")
	assert.Equal(t, models.ExecutionCanceled, result.Final.State)
	assert.Len(t, result.Attempts, 1)
}
