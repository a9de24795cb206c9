package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pipeforge/pkg/models"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Warn(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

const barePipeline = `stages:
  - build
  - test
  - notify

build:
  stage: build
  script:
    - make build

test:
  stage: test
  script:
    - make test

notify:
  stage: notify
  script:
    - echo done
  when: always
`

func artifactWith(pipeline string) models.PipelineArtifact {
	return models.PipelineArtifact{
		Content: models.ArtifactContent{
			PipelineDefinition:   pipeline,
			ImageBuildDefinition: "FROM scratch\n",
		},
		Source: models.SourceGenerated,
	}
}

func TestNormalizeInsertsLearningStageAfterNotify(t *testing.T) {
	n := NewNormalizer("https://orchestrator.local")

	out, err := n.Normalize(artifactWith(barePipeline))
	require.NoError(t, err)

	var doc struct {
		Stages    []string          `yaml:"stages"`
		Variables map[string]string `yaml:"variables"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out.Content.PipelineDefinition), &doc))

	assert.Equal(t, []string{"build", "test", "notify", "learn"}, doc.Stages)
	assert.Contains(t, doc.Variables, CallbackVar)
	assert.Equal(t, "https://orchestrator.local", doc.Variables[CallbackVar])
	assert.Contains(t, out.Content.PipelineDefinition, "learn:")
}

func TestNormalizeAppendsStageWhenNotifyMissing(t *testing.T) {
	n := NewNormalizer("")

	src := "stages:\n  - build\n\nbuild:\n  stage: build\n  script:\n    - make\n"
	out, err := n.Normalize(artifactWith(src))
	require.NoError(t, err)

	var doc struct {
		Stages []string `yaml:"stages"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out.Content.PipelineDefinition), &doc))
	assert.Equal(t, []string{"build", "learn"}, doc.Stages)
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer("https://orchestrator.local")

	once, err := n.Normalize(artifactWith(barePipeline))
	require.NoError(t, err)
	twice, err := n.Normalize(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestNormalizeDefaultTemplateIdempotent(t *testing.T) {
	n := NewNormalizer("https://orchestrator.local")

	for _, lang := range []string{"go", "python", "unknown-language"} {
		artifact := models.PipelineArtifact{Content: DefaultTemplate(lang), Source: models.SourceGenerated}
		once, err := n.Normalize(artifact)
		require.NoError(t, err, lang)
		twice, err := n.Normalize(once)
		require.NoError(t, err, lang)
		assert.Equal(t, once, twice, lang)
	}
}

func TestNormalizeKeepsExistingCallbackVariable(t *testing.T) {
	n := NewNormalizer("https://new.example")

	src := barePipeline + "\nvariables:\n  " + CallbackVar + ": \"https://old.example\"\n"
	out, err := n.Normalize(artifactWith(src))
	require.NoError(t, err)

	assert.Contains(t, out.Content.PipelineDefinition, "https://old.example")
	assert.NotContains(t, out.Content.PipelineDefinition, "https://new.example")
}

func TestNormalizeLeavesImageBuildAlone(t *testing.T) {
	n := NewNormalizer("https://orchestrator.local")

	in := artifactWith(barePipeline)
	out, err := n.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, in.Content.ImageBuildDefinition, out.Content.ImageBuildDefinition)
}

func TestNormalizeRejectsNonMappingDocument(t *testing.T) {
	n := NewNormalizer("")

	_, err := n.Normalize(artifactWith("- just\n- a\n- list\n"))
	assert.Error(t, err)

	_, err = n.Normalize(artifactWith("stages: [build\n"))
	assert.Error(t, err)
}

func TestValidatePipeline(t *testing.T) {
	assert.NoError(t, ValidatePipeline(barePipeline))

	err := ValidatePipeline("")
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	err = ValidatePipeline("build:\n  script:\n    - make\n")
	assert.ErrorIs(t, err, ErrInvalidPipeline, "missing stage list must fail validation")

	err = ValidatePipeline("stages: [build\n")
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	if err := ValidatePipeline(DefaultTemplate("go").PipelineDefinition); err != nil {
		t.Fatalf("built-in template must validate: %v", err)
	}
	if !strings.Contains(DefaultTemplate("not-a-language").PipelineDefinition, StageLearn) {
		t.Fatal("polyglot default must carry the learning stage")
	}
}
