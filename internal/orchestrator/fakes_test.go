package orchestrator

import (
	"context"

	"pipeforge/pkg/models"
)

// Function-field fakes for the collaborator interfaces. Only the fields a test
// sets are callable; an unexpected call panics, which is the point.

type fakeVCS struct {
	createBranch       func(ctx context.Context, repoRef, credential, branch, fromRef string) error
	commitFiles        func(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error)
	getExecutionStatus func(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error)
	getJobs            func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error)
	getJobLogs         func(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error)
	cancelExecution    func(ctx context.Context, repoRef, credential, executionID string) error
}

func (f *fakeVCS) CreateBranch(ctx context.Context, repoRef, credential, branch, fromRef string) error {
	return f.createBranch(ctx, repoRef, credential, branch, fromRef)
}

func (f *fakeVCS) CommitFiles(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error) {
	return f.commitFiles(ctx, repoRef, credential, branch, files, message)
}

func (f *fakeVCS) GetExecutionStatus(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
	return f.getExecutionStatus(ctx, repoRef, credential, ref)
}

func (f *fakeVCS) GetJobs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
	return f.getJobs(ctx, repoRef, credential, executionID)
}

func (f *fakeVCS) GetJobLogs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
	return f.getJobLogs(ctx, repoRef, credential, executionID)
}

func (f *fakeVCS) CancelExecution(ctx context.Context, repoRef, credential, executionID string) error {
	return f.cancelExecution(ctx, repoRef, credential, executionID)
}

// happyVCS returns a fake where branching and committing always succeed.
func happyVCS() *fakeVCS {
	return &fakeVCS{
		createBranch: func(ctx context.Context, repoRef, credential, branch, fromRef string) error {
			return nil
		},
		commitFiles: func(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error) {
			return "abc123", nil
		},
		cancelExecution: func(ctx context.Context, repoRef, credential, executionID string) error {
			return nil
		},
	}
}

type fakeModel struct {
	complete     func(ctx context.Context, systemPrompt, userContext string) (string, error)
	getEmbedding func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeModel) Complete(ctx context.Context, systemPrompt, userContext string) (string, error) {
	return f.complete(ctx, systemPrompt, userContext)
}

func (f *fakeModel) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.getEmbedding(ctx, text)
}

type fakeAnalyzer struct {
	analyze func(ctx context.Context, repoRef, credential string) (*models.RepositoryProfile, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, repoRef, credential string) (*models.RepositoryProfile, error) {
	return f.analyze(ctx, repoRef, credential)
}

type fakeStore struct {
	queryTemplates         func(ctx context.Context, language, framework string, limit int) ([]*models.Template, error)
	searchSimilarTemplates func(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error)
	upsertTemplate         func(ctx context.Context, tmpl *models.Template) error
	queryLearnedConfigs    func(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error)
	upsertLearnedConfig    func(ctx context.Context, cfg *models.LearnedConfig) error
	ping                   func(ctx context.Context) error
}

func (f *fakeStore) QueryTemplates(ctx context.Context, language, framework string, limit int) ([]*models.Template, error) {
	return f.queryTemplates(ctx, language, framework, limit)
}

func (f *fakeStore) SearchSimilarTemplates(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error) {
	return f.searchSimilarTemplates(ctx, embedding, limit)
}

func (f *fakeStore) UpsertTemplate(ctx context.Context, tmpl *models.Template) error {
	return f.upsertTemplate(ctx, tmpl)
}

func (f *fakeStore) QueryLearnedConfigs(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error) {
	return f.queryLearnedConfigs(ctx, language, framework, limit)
}

func (f *fakeStore) UpsertLearnedConfig(ctx context.Context, cfg *models.LearnedConfig) error {
	return f.upsertLearnedConfig(ctx, cfg)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.ping(ctx)
}

// emptyStore returns a fake whose lookups always come back empty, which
// drives every selection to the built-in default.
func emptyStore() *fakeStore {
	return &fakeStore{
		queryTemplates: func(ctx context.Context, language, framework string, limit int) ([]*models.Template, error) {
			return nil, nil
		},
		searchSimilarTemplates: func(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error) {
			return nil, nil
		},
		queryLearnedConfigs: func(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error) {
			return nil, nil
		},
		upsertLearnedConfig: func(ctx context.Context, cfg *models.LearnedConfig) error { return nil },
		ping:                func(ctx context.Context) error { return nil },
	}
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

func testRequest() *models.WorkflowRequest {
	return &models.WorkflowRequest{RepoRef: "group/app", Credential: "glpat-test"}
}
