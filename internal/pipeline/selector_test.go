package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pipeforge/pkg/models"
)

// MockTemplateStore is a mock implementation of repository.TemplateStore
type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) QueryTemplates(ctx context.Context, language, framework string, limit int) ([]*models.Template, error) {
	args := m.Called(ctx, language, framework, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Template), args.Error(1)
}

func (m *MockTemplateStore) SearchSimilarTemplates(ctx context.Context, embedding []float32, limit int) ([]*models.Template, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Template), args.Error(1)
}

func (m *MockTemplateStore) UpsertTemplate(ctx context.Context, tmpl *models.Template) error {
	args := m.Called(ctx, tmpl)
	return args.Error(0)
}

func (m *MockTemplateStore) QueryLearnedConfigs(ctx context.Context, language, framework string, limit int) ([]*models.LearnedConfig, error) {
	args := m.Called(ctx, language, framework, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LearnedConfig), args.Error(1)
}

func (m *MockTemplateStore) UpsertLearnedConfig(ctx context.Context, cfg *models.LearnedConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockTemplateStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func completeContent(tag string) models.ArtifactContent {
	return models.ArtifactContent{
		PipelineDefinition:   "stages:\n  - build\n# " + tag + "\n",
		ImageBuildDefinition: "FROM scratch # " + tag + "\n",
	}
}

func learnedCfg(id string, stages int, duration float64) *models.LearnedConfig {
	return &models.LearnedConfig{
		ID:              id,
		Language:        "go",
		Framework:       "echo",
		StagesPassed:    stages,
		DurationSeconds: duration,
		Content:         completeContent(id),
	}
}

func TestSelectPrefersLearnedOverTemplates(t *testing.T) {
	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).
		Return([]*models.LearnedConfig{learnedCfg("cfg-1", 5, 120)}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err)
	assert.Equal(t, models.SourceLearned, sel.Source)
	assert.Equal(t, "cfg-1", sel.TemplateID)
	// Template tiers must not even be consulted.
	store.AssertNotCalled(t, "QueryTemplates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectPicksMostStagesPassed(t *testing.T) {
	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).
		Return([]*models.LearnedConfig{
			learnedCfg("five-stages", 5, 30),
			learnedCfg("seven-stages", 7, 900),
		}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err)
	assert.Equal(t, "seven-stages", sel.TemplateID, "stage count dominates duration")
}

func TestSelectBreaksStageTiesOnDuration(t *testing.T) {
	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).
		Return([]*models.LearnedConfig{
			learnedCfg("slow", 5, 300),
			learnedCfg("fast", 5, 90),
			learnedCfg("medium", 5, 150),
		}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err)
	assert.Equal(t, "fast", sel.TemplateID)
}

func TestSelectSkipsIncompleteLearnedConfigs(t *testing.T) {
	incomplete := learnedCfg("broken", 9, 10)
	incomplete.Content.ImageBuildDefinition = ""

	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).
		Return([]*models.LearnedConfig{incomplete, learnedCfg("whole", 3, 60)}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err)
	assert.Equal(t, "whole", sel.TemplateID)
}

func TestSelectFallsThroughToExactTemplate(t *testing.T) {
	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).
		Return(nil, errors.New("connection refused"))
	store.On("QueryTemplates", mock.Anything, "go", "echo", 10).
		Return([]*models.Template{{ID: "tmpl-go-echo", Content: completeContent("tmpl")}}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err, "a failing tier falls through, it does not fail the lookup")
	assert.Equal(t, models.SourceExactTemplate, sel.Source)
	assert.Equal(t, "tmpl-go-echo", sel.TemplateID)
}

func TestSelectPartialMatchOnLanguageOnly(t *testing.T) {
	partial := &models.Template{
		ID:      "tmpl-go-any",
		Content: models.ArtifactContent{PipelineDefinition: "stages:\n  - build\n"},
	}

	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "go", "gin", 10).
		Return([]*models.LearnedConfig{}, nil)
	// Exact tier and partial tier both query go/gin first; only the complete
	// content requirement differs. The language-only fallback then hits.
	store.On("QueryTemplates", mock.Anything, "go", "gin", 10).
		Return([]*models.Template{}, nil)
	store.On("QueryTemplates", mock.Anything, "go", "", 10).
		Return([]*models.Template{partial}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "gin")

	require.NoError(t, err)
	assert.Equal(t, models.SourcePartialTemplate, sel.Source)
	assert.Equal(t, "tmpl-go-any", sel.TemplateID)
	assert.Empty(t, sel.Content.ImageBuildDefinition)
}

func TestSelectDefaultsWhenNothingMatches(t *testing.T) {
	store := new(MockTemplateStore)
	store.On("QueryLearnedConfigs", mock.Anything, "cobol", "", 10).
		Return([]*models.LearnedConfig{}, nil)
	store.On("QueryTemplates", mock.Anything, "cobol", "", 10).
		Return([]*models.Template{}, nil)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "cobol", "")

	require.NoError(t, err)
	assert.Equal(t, models.SourceGenerated, sel.Source, "built-in default carries generated provenance")
	assert.Empty(t, sel.TemplateID)
	assert.True(t, sel.Content.IsComplete())
	assert.NoError(t, ValidatePipeline(sel.Content.PipelineDefinition))
}

func TestSelectDefaultsWhenEveryTierErrors(t *testing.T) {
	store := new(MockTemplateStore)
	boom := errors.New("store down")
	store.On("QueryLearnedConfigs", mock.Anything, "go", "echo", 10).Return(nil, boom)
	store.On("QueryTemplates", mock.Anything, "go", "echo", 10).Return(nil, boom)
	store.On("QueryTemplates", mock.Anything, "go", "", 10).Return(nil, boom)

	selector := NewSelector(store, &NoOpLogger{}, 10)
	sel, err := selector.Select(context.Background(), "go", "echo")

	require.NoError(t, err)
	assert.Equal(t, models.SourceGenerated, sel.Source)
	assert.True(t, sel.Content.IsComplete())
}
