package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pipeforge/internal/repository"
	"pipeforge/internal/services"
	"pipeforge/pkg/models"
)

// System prompts for the three generation paths. The stage sequence named here
// is the one the normalizer enforces afterwards.
const (
	SystemPromptGenerate = `You are a CI/CD pipeline author. Produce a GitLab-style pipeline definition ` +
		`and a multi-stage container build file for the described repository. The pipeline must declare ` +
		`the stages build, test, scan, notify, learn in that order. Respond with a JSON object with the ` +
		`keys "pipeline_definition" and "image_build_definition" and no other text.`

	SystemPromptAdapt = `You are a CI/CD pipeline author. Complete the given partial pipeline ` +
		`configuration for the described repository, keeping the provided file as the reference and ` +
		`generating whatever is missing. The pipeline must declare the stages build, test, scan, notify, ` +
		`learn in that order. Respond with a JSON object with the keys "pipeline_definition" and ` +
		`"image_build_definition" and no other text.`

	SystemPromptFix = `You are a CI/CD pipeline repair assistant. The given pipeline failed; the error ` +
		`class and job logs are provided. Return a fully corrected replacement configuration. Respond ` +
		`with a JSON object with the keys "pipeline_definition" and "image_build_definition" and no ` +
		`other text.`
)

// Generator decides whether to reuse a selected reference verbatim, adapt it
// through the generative model, or generate from scratch. Whatever happens, it
// returns a usable, normalized artifact: model failures degrade to the
// built-in default instead of surfacing.
type Generator struct {
	selector   *Selector
	model      services.ModelClient
	store      repository.TemplateStore
	normalizer *Normalizer
	logger     Logger
}

// NewGenerator creates a new Generator.
func NewGenerator(selector *Selector, model services.ModelClient, store repository.TemplateStore, normalizer *Normalizer, logger Logger) *Generator {
	return &Generator{selector: selector, model: model, store: store, normalizer: normalizer, logger: logger}
}

// Generate produces the pipeline artifact for a repository profile.
func (g *Generator) Generate(ctx context.Context, profile *models.RepositoryProfile, extraContext string) (*models.PipelineArtifact, error) {
	sel, err := g.selector.Select(ctx, profile.Language, profile.Framework)
	if err != nil {
		return nil, fmt.Errorf("reference selection failed: %w", err)
	}

	var artifact models.PipelineArtifact
	switch sel.Source {
	case models.SourceLearned, models.SourceExactTemplate:
		artifact = models.PipelineArtifact{Content: sel.Content, Source: sel.Source, TemplateID: sel.TemplateID}
	case models.SourcePartialTemplate:
		artifact = g.adapt(ctx, sel, profile, extraContext)
	default:
		artifact = g.fromScratch(ctx, profile, extraContext)
	}

	// Last line of defense: whatever path was taken, the result must parse.
	if err := ValidatePipeline(artifact.Content.PipelineDefinition); err != nil {
		g.logger.Warn("generated artifact failed validation, using built-in default",
			"language", profile.Language, "error", err)
		artifact = models.PipelineArtifact{Content: DefaultTemplate(profile.Language), Source: models.SourceGenerated}
	}

	normalized, err := g.normalizer.Normalize(artifact)
	if err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}
	return &normalized, nil
}

// adapt asks the model to complete a partial template. The reference file is
// kept verbatim; only missing pieces are taken from the model output.
func (g *Generator) adapt(ctx context.Context, sel *Selection, profile *models.RepositoryProfile, extraContext string) models.PipelineArtifact {
	userContext := profileContext(profile, extraContext)
	if sel.Content.PipelineDefinition != "" {
		userContext += "\n\nReference pipeline definition:\n" + sel.Content.PipelineDefinition
	}
	if sel.Content.ImageBuildDefinition != "" {
		userContext += "\n\nReference image build definition:\n" + sel.Content.ImageBuildDefinition
	}

	text, err := g.model.Complete(ctx, SystemPromptAdapt, userContext)
	if err != nil {
		g.logger.Warn("model adaptation failed, generating from scratch", "error", err)
		return g.fromScratch(ctx, profile, extraContext)
	}
	generated, err := ParseArtifactResponse(text)
	if err != nil {
		g.logger.Warn("model adaptation returned unusable content, generating from scratch", "error", err)
		return g.fromScratch(ctx, profile, extraContext)
	}

	merged := sel.Content
	if merged.PipelineDefinition == "" {
		merged.PipelineDefinition = generated.PipelineDefinition
	}
	if merged.ImageBuildDefinition == "" {
		merged.ImageBuildDefinition = generated.ImageBuildDefinition
	}
	return models.PipelineArtifact{Content: merged, Source: models.SourcePartialTemplate, TemplateID: sel.TemplateID}
}

// fromScratch generates a fresh artifact, optionally enriched with the nearest
// stored template as reference context. Every failure degrades to the built-in
// default so generation always produces something usable.
func (g *Generator) fromScratch(ctx context.Context, profile *models.RepositoryProfile, extraContext string) models.PipelineArtifact {
	fallback := models.PipelineArtifact{Content: DefaultTemplate(profile.Language), Source: models.SourceGenerated}

	userContext := profileContext(profile, extraContext)
	if ref := g.similarReference(ctx, profile); ref != "" {
		userContext += "\n\nSimilar known-good pipeline for reference:\n" + ref
	}

	text, err := g.model.Complete(ctx, SystemPromptGenerate, userContext)
	if err != nil {
		g.logger.Warn("model generation failed, using built-in default", "language", profile.Language, "error", err)
		return fallback
	}
	content, err := ParseArtifactResponse(text)
	if err != nil {
		g.logger.Warn("model returned unusable content, using built-in default", "language", profile.Language, "error", err)
		return fallback
	}
	if content.ImageBuildDefinition == "" {
		content.ImageBuildDefinition = fallback.Content.ImageBuildDefinition
	}
	return models.PipelineArtifact{Content: content, Source: models.SourceGenerated}
}

// similarReference embeds the profile and fetches the nearest stored template.
// Any failure is silent; the reference is an enrichment, not a requirement.
func (g *Generator) similarReference(ctx context.Context, profile *models.RepositoryProfile) string {
	embedding, err := g.model.GetEmbedding(ctx, profileContext(profile, ""))
	if err != nil {
		g.logger.Debug("embedding lookup failed, generating without reference", "error", err)
		return ""
	}
	templates, err := g.store.SearchSimilarTemplates(ctx, embedding, 1)
	if err != nil || len(templates) == 0 {
		return ""
	}
	return templates[0].Content.PipelineDefinition
}

func profileContext(profile *models.RepositoryProfile, extraContext string) string {
	s := fmt.Sprintf("Repository profile: language=%s framework=%s package_manager=%s existing_pipeline_files=%t",
		profile.Language, profile.Framework, profile.PackageManager, profile.HasPipelineFiles)
	if extraContext != "" {
		s += "\nAdditional context: " + extraContext
	}
	return s
}

// ParseArtifactResponse extracts an artifact pair from model output. The model
// is asked for JSON; as a concession to real model behavior, markdown fences
// are stripped and a bare YAML pipeline is accepted as pipeline-only content.
func ParseArtifactResponse(text string) (models.ArtifactContent, error) {
	cleaned := stripCodeFences(strings.TrimSpace(text))

	var content models.ArtifactContent
	if err := json.Unmarshal([]byte(cleaned), &content); err == nil && content.PipelineDefinition != "" {
		if err := ValidatePipeline(content.PipelineDefinition); err != nil {
			return models.ArtifactContent{}, err
		}
		return content, nil
	}

	if err := ValidatePipeline(cleaned); err == nil {
		return models.ArtifactContent{PipelineDefinition: cleaned}, nil
	}
	return models.ArtifactContent{}, fmt.Errorf("%w: model output is neither an artifact JSON object nor a pipeline document", ErrInvalidPipeline)
}

func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if n := len(lines); strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}
